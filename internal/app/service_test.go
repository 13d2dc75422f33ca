package service_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	service "github.com/okian/skillcert/internal/app"
	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

// fakeBackend serves one area with one group, one position and three
// employees. Created results and committed signatures are kept so later
// reads see them.
type fakeBackend struct {
	mu          sync.Mutex
	results     map[int64][]model.EvaluationResult
	progress    []model.LevelProgress
	resultCalls map[int64]int
	commitErr   map[string]error
	nextID      int64
}

func newBackend() *fakeBackend {
	return &fakeBackend{
		results: map[int64][]model.EvaluationResult{
			42: {{
				ID: 100, EvaluationID: 11, UserID: 42, SupervisorID: 70,
				Points: []model.PointResult{{QuestionID: 1, Score: 3}, {QuestionID: 2, Score: 3}},
				Status: model.StatusCompleted,
				Signatures: []model.SignatureRecord{
					{Type: model.EmployeeSlot, Signed: true},
					{Type: "supervisor", Signed: true},
				},
			}},
		},
		resultCalls: map[int64]int{},
		commitErr:   map[string]error{},
		nextID:      500,
	}
}

func (f *fakeBackend) ListAreas(context.Context) ([]model.Area, error) {
	return []model.Area{{ID: 1, Name: "Producción", Active: true}}, nil
}

func (f *fakeBackend) ListGroups(context.Context, int64) ([]model.Group, error) {
	return []model.Group{{ID: 2, AreaID: 1, Name: "Turno A", Supervisors: []int64{70}}}, nil
}

func (f *fakeBackend) ListPositions(context.Context, int64, int64) ([]model.Position, error) {
	return []model.Position{{ID: 3, AreaID: 1, GroupID: 2, Name: "Operador"}}, nil
}

func (f *fakeBackend) ListEmployees(context.Context, int64) ([]model.Employee, error) {
	return []model.Employee{
		{ID: 42, FullName: "Marta Ruiz", PositionID: 3, GroupID: 2, AreaIDs: []int64{1}},
		{ID: 43, FullName: "Pedro Gil", PositionID: 3, GroupID: 2},
		{ID: 44, FullName: "Otro Turno", PositionID: 3, GroupID: 9},
	}, nil
}

func (f *fakeBackend) ListSupervisors(context.Context, int64) ([]model.Supervisor, error) {
	return []model.Supervisor{{ID: 70, FullName: "Ana"}, {ID: 71, FullName: "Luis"}}, nil
}

func (f *fakeBackend) ListEvaluations(context.Context, int64, int64) ([]model.EvaluationInstance, error) {
	return []model.EvaluationInstance{{
		ID:                11,
		Level:             1,
		Questions:         []model.Question{{ID: 1}, {ID: 2}},
		FormulaDivisor:    6,
		FormulaMultiplier: 100,
		MinimumPassing:    50,
		Signatures: []model.SignatureSlot{
			{Type: model.EmployeeSlot, Name: "Empleado", Order: 1},
			{Type: "supervisor", Name: "Supervisor", Order: 2},
		},
	}}, nil
}

func (f *fakeBackend) ListResults(_ context.Context, userID int64) ([]model.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls[userID]++
	return append([]model.EvaluationResult(nil), f.results[userID]...), nil
}

func (f *fakeBackend) LevelProgress(context.Context, int64) ([]model.LevelProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress, nil
}

func (f *fakeBackend) CreateResult(_ context.Context, sub model.ResultSubmission) (model.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	final := 83.33
	r := model.EvaluationResult{
		ID:           f.nextID,
		EvaluationID: sub.EvaluationID,
		UserID:       sub.UserID,
		SupervisorID: sub.SupervisorID,
		Points:       sub.Points,
		FinalResult:  &final,
		Status:       model.StatusPending,
	}
	f.results[sub.UserID] = append(f.results[sub.UserID], r)
	return r, nil
}

func (f *fakeBackend) CommitSignature(_ context.Context, resultID int64, req model.SignatureRequest) (model.SignatureRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.commitErr[req.Type]; err != nil {
		return model.SignatureRecord{}, err
	}
	rec := model.SignatureRecord{Type: req.Type, Image: req.Image, Signed: req.Image.Present()}
	for user, rs := range f.results {
		for i := range rs {
			if rs[i].ID == resultID {
				f.results[user][i].Signatures = append(f.results[user][i].Signatures, rec)
			}
		}
	}
	return rec, nil
}

func (f *fakeBackend) calls(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resultCalls[userID]
}

func started(backend service.Backend, opts ...service.Option) *service.Service {
	svc := service.New(backend, opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(newBackend())

		Convey("When it is used before Start", func() {
			_, err := svc.Levels(context.Background(), 42, 1, 3)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			svc.Stop()
			svc.Stop()

			Convey("Then it reports stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Levels(t *testing.T) {
	Convey("Given a started service", t, func() {
		backend := newBackend()
		svc := started(backend)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When an employee with a finished result is read twice", func() {
			first, err := svc.Levels(ctx, 42, 1, 3)
			So(err, ShouldBeNil)
			second, err := svc.Levels(ctx, 42, 1, 3)
			So(err, ShouldBeNil)

			Convey("Then the level is complete and the second read is cached", func() {
				So(first.Completed(1), ShouldBeTrue)
				So(first.Completed(2), ShouldBeFalse)
				So(second, ShouldResemble, first)
				So(backend.calls(42), ShouldEqual, 1)
			})
		})

		Convey("When the backend overrides a level", func() {
			backend.progress = []model.LevelProgress{{UserID: 43, Level: 2, Completed: true}}
			sum, err := svc.Levels(ctx, 43, 1, 3)

			Convey("Then the override wins", func() {
				So(err, ShouldBeNil)
				So(sum.Completed(2), ShouldBeTrue)
				So(sum.Completed(1), ShouldBeFalse)
			})
		})

		Convey("When the override is disabled", func() {
			svc := started(backend, service.WithLevelProgress(false))
			defer svc.Stop()
			backend.progress = []model.LevelProgress{{UserID: 43, Level: 2, Completed: true}}
			sum, err := svc.Levels(ctx, 43, 1, 3)

			Convey("Then only computed levels count", func() {
				So(err, ShouldBeNil)
				So(sum.Completed(2), ShouldBeFalse)
			})
		})
	})
}

func TestService_Workspace(t *testing.T) {
	Convey("Given a started service with a workspace", t, func() {
		backend := newBackend()
		svc := started(backend)
		defer svc.Stop()
		ctx := context.Background()

		v, err := svc.NewWorkspace(ctx)
		So(err, ShouldBeNil)
		So(v.Depth, ShouldEqual, "areas")
		So(v.Items, ShouldHaveLength, 1)

		Convey("When the hierarchy is walked down to a position", func() {
			v, err = svc.Select(ctx, v.ID, service.LevelArea, 1)
			So(err, ShouldBeNil)
			So(v.Depth, ShouldEqual, "groups")
			v, err = svc.Select(ctx, v.ID, service.LevelGroup, 2)
			So(err, ShouldBeNil)
			So(v.Depth, ShouldEqual, "positions")
			v, err = svc.Select(ctx, v.ID, service.LevelPosition, 3)
			So(err, ShouldBeNil)

			Convey("Then the roster excludes other groups", func() {
				So(v.Depth, ShouldEqual, "employees")
				roster, ok := v.Items.([]model.Employee)
				So(ok, ShouldBeTrue)
				So(len(roster), ShouldEqual, 2)
				So(roster[0].ID, ShouldEqual, 42)
				So(roster[1].ID, ShouldEqual, 43)
			})

			Convey("Then the background load fills the summaries", func() {
				deadline := time.Now().Add(2 * time.Second)
				for v.Loading && time.Now().Before(deadline) {
					time.Sleep(10 * time.Millisecond)
					v, err = svc.Workspace(ctx, v.ID)
					So(err, ShouldBeNil)
				}
				So(v.Loading, ShouldBeFalse)
				So(v.Report, ShouldNotBeNil)
				So(v.Report.Applied, ShouldEqual, 2)
				So(v.Summaries[42].Completed(1), ShouldBeTrue)
				So(v.Summaries[43].Completed(1), ShouldBeFalse)
			})

			Convey("Then an employee of the roster can be selected", func() {
				v, err = svc.Select(ctx, v.ID, service.LevelEmployee, 43)
				So(err, ShouldBeNil)
				So(v.Employee, ShouldNotBeNil)
				So(v.Scope.EmployeeID, ShouldEqual, 43)
			})

			Convey("Then an employee outside the roster is not found", func() {
				_, err = svc.Select(ctx, v.ID, service.LevelEmployee, 44)
				So(errors.Is(err, service.ErrNodeNotFound), ShouldBeTrue)
				So(service.IsNotFound(err), ShouldBeTrue)
			})

			Convey("Then Back returns to the positions", func() {
				v, err = svc.Back(ctx, v.ID)
				So(err, ShouldBeNil)
				So(v.Depth, ShouldEqual, "positions")
				So(v.Position, ShouldBeNil)
				So(v.Summaries, ShouldBeNil)
			})
		})

		Convey("When a group is selected before an area", func() {
			_, err = svc.Select(ctx, v.ID, service.LevelGroup, 2)

			Convey("Then the selection is a validation error", func() {
				So(failure.IsValidation(err), ShouldBeTrue)
			})
		})

		Convey("When an unknown node or level is selected", func() {
			_, errNode := svc.Select(ctx, v.ID, service.LevelArea, 99)
			_, errLevel := svc.Select(ctx, v.ID, "planta", 1)

			Convey("Then both are rejected", func() {
				So(errors.Is(errNode, service.ErrNodeNotFound), ShouldBeTrue)
				So(errors.Is(errLevel, service.ErrUnknownLevel), ShouldBeTrue)
			})
		})

		Convey("When an unknown workspace is read", func() {
			_, err = svc.Workspace(ctx, "missing")

			Convey("Then it is not found", func() {
				So(errors.Is(err, service.ErrWorkspaceNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service with prefetch disabled", t, func() {
		svc := started(newBackend(), service.WithPrefetch(false))
		defer svc.Stop()
		ctx := context.Background()

		v, err := svc.NewWorkspace(ctx)
		So(err, ShouldBeNil)
		v, _ = svc.Select(ctx, v.ID, service.LevelArea, 1)
		v, _ = svc.Select(ctx, v.ID, service.LevelGroup, 2)
		v, err = svc.Select(ctx, v.ID, service.LevelPosition, 3)

		Convey("Then the roster is listed without summaries", func() {
			So(err, ShouldBeNil)
			So(v.Loading, ShouldBeFalse)
			So(v.Summaries, ShouldBeEmpty)
		})
	})
}
