package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/skillcert/internal/adapters/http/api"
	service "github.com/okian/skillcert/internal/app"
	"github.com/okian/skillcert/internal/domain/completion"
	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/internal/domain/session"
	"github.com/okian/skillcert/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

// mockDeps records the last call and answers with err when set.
type mockDeps struct {
	err error

	selected   string
	selectedID int64
	levelsArgs [3]int64
	opened     service.SessionRequest
	scores     []service.ScoreInput
	captured   model.PendingSignature
	slot       string
	cleared    bool
}

func (m *mockDeps) NewWorkspace(context.Context) (service.WorkspaceView, error) {
	return service.WorkspaceView{ID: "ws-1", Depth: "areas"}, m.err
}

func (m *mockDeps) Workspace(_ context.Context, id string) (service.WorkspaceView, error) {
	return service.WorkspaceView{ID: id, Depth: "areas"}, m.err
}

func (m *mockDeps) Select(_ context.Context, id, level string, nodeID int64) (service.WorkspaceView, error) {
	m.selected, m.selectedID = level, nodeID
	return service.WorkspaceView{ID: id, Depth: "groups"}, m.err
}

func (m *mockDeps) Back(_ context.Context, id string) (service.WorkspaceView, error) {
	return service.WorkspaceView{ID: id, Depth: "areas"}, m.err
}

func (m *mockDeps) Levels(_ context.Context, employeeID, areaID, positionID int64) (completion.Summary, error) {
	m.levelsArgs = [3]int64{employeeID, areaID, positionID}
	return completion.Summary{Levels: map[int]bool{1: true}}, m.err
}

func (m *mockDeps) OpenSession(_ context.Context, req service.SessionRequest) (service.SessionView, error) {
	m.opened = req
	return service.SessionView{ID: "s-1", Snapshot: session.Snapshot{State: session.StateStarted}}, m.err
}

func (m *mockDeps) Session(_ context.Context, id string) (service.SessionView, error) {
	return service.SessionView{ID: id}, m.err
}

func (m *mockDeps) CloseSession(context.Context, string) error { return m.err }

func (m *mockDeps) Score(_ context.Context, id string, inputs []service.ScoreInput) (service.SessionView, error) {
	m.scores = inputs
	return service.SessionView{ID: id}, m.err
}

func (m *mockDeps) SelectSupervisor(_ context.Context, id string, _ int64) (service.SessionView, error) {
	return service.SessionView{ID: id}, m.err
}

func (m *mockDeps) CaptureSignature(_ context.Context, id, slotType string, p model.PendingSignature) (service.SessionView, error) {
	m.slot, m.captured = slotType, p
	return service.SessionView{ID: id}, m.err
}

func (m *mockDeps) RemoveSignature(_ context.Context, id, slotType string) (service.SessionView, error) {
	m.slot = slotType
	return service.SessionView{ID: id}, m.err
}

func (m *mockDeps) ClearSignature(_ context.Context, _, slotType string) (bool, error) {
	m.slot = slotType
	return m.cleared, m.err
}

func (m *mockDeps) Submit(context.Context, string) (service.SubmitView, error) {
	return service.SubmitView{
		Result:     model.EvaluationResult{ID: 77},
		Signatures: service.SignatureReport{Committed: []string{"empleado"}},
	}, m.err
}

func (m *mockDeps) RetrySignatures(context.Context, string) (service.SignatureReport, error) {
	return service.SignatureReport{Committed: []string{"supervisor"}}, m.err
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

type errBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields"`
}

func decodeErr(w *httptest.ResponseRecorder) errBody {
	var b errBody
	So(json.Unmarshal(w.Body.Bytes(), &b), ShouldBeNil)
	return b
}

func TestServer_Ops(t *testing.T) {
	Convey("Given a registered API", t, func() {
		mux := newMux(&mockDeps{})

		Convey("Then health answers ok", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then metrics are exposed", func() {
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are returned as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then a wrong method is rejected by the mux", func() {
			w := do(mux, http.MethodPost, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestWorkspaceHandler(t *testing.T) {
	Convey("Given a registered API", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When a workspace is created", func() {
			w := do(mux, http.MethodPost, "/workspaces", "")

			Convey("Then it is returned with 201", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Body.String(), ShouldContainSubstring, `"id":"ws-1"`)
			})
		})

		Convey("When a level is selected", func() {
			w := do(mux, http.MethodPost, "/workspaces/ws-1/select", `{"nivel":"grupo","id":2}`)

			Convey("Then the selection reaches the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.selected, ShouldEqual, "grupo")
				So(deps.selectedID, ShouldEqual, 2)
			})
		})

		Convey("When the selection names an unknown level", func() {
			w := do(mux, http.MethodPost, "/workspaces/ws-1/select", `{"nivel":"planta","id":0}`)

			Convey("Then each bad field is reported by its json name", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				b := decodeErr(w)
				So(b.Code, ShouldEqual, "validation")
				So(b.Fields["nivel"], ShouldResemble, []string{"oneof"})
				So(b.Fields["id"], ShouldResemble, []string{"required"})
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/workspaces/ws-1/select", `{`)

			Convey("Then it is a validation error on the body", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeErr(w).Fields, ShouldContainKey, "body")
			})
		})

		Convey("When the workspace does not exist", func() {
			deps.err = fmt.Errorf("%w: ws-9", service.ErrWorkspaceNotFound)
			w := do(mux, http.MethodGet, "/workspaces/ws-9", "")

			Convey("Then it is 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeErr(w).Code, ShouldEqual, "not_found")
			})
		})

		Convey("When the backend fails while going back", func() {
			deps.err = failure.Transport(http.StatusForbidden, "No autorizado.", nil)
			w := do(mux, http.MethodPost, "/workspaces/ws-1/back", "")

			Convey("Then it is 502 with the backend message", func() {
				So(w.Code, ShouldEqual, http.StatusBadGateway)
				So(decodeErr(w).Message, ShouldEqual, "No autorizado.")
			})
		})
	})
}

func TestLevelsHandler(t *testing.T) {
	Convey("Given a registered API", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When levels are read with every id", func() {
			w := do(mux, http.MethodGet, "/employees/42/levels?area_id=1&posicion_id=3", "")

			Convey("Then the summary is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.levelsArgs, ShouldResemble, [3]int64{42, 1, 3})
				So(w.Body.String(), ShouldContainSubstring, `"niveles":{"1":true}`)
			})
		})

		Convey("When the position is missing", func() {
			w := do(mux, http.MethodGet, "/employees/42/levels?area_id=1", "")

			Convey("Then the query parameter is reported", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeErr(w).Fields["posicion_id"], ShouldResemble, []string{"required"})
			})
		})

		Convey("When the employee id is not a number", func() {
			w := do(mux, http.MethodGet, "/employees/abc/levels?area_id=1&posicion_id=3", "")

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeErr(w).Fields, ShouldContainKey, "id")
			})
		})

		Convey("When the service fails unexpectedly", func() {
			deps.err = errors.New("boom: secret detail")
			w := do(mux, http.MethodGet, "/employees/42/levels?area_id=1&posicion_id=3", "")

			Convey("Then the cause is hidden", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldNotContainSubstring, "secret")
			})
		})
	})
}

func TestSessionHandler(t *testing.T) {
	Convey("Given a registered API", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When a session is opened", func() {
			w := do(mux, http.MethodPost, "/sessions", `{"usuario":42,"evaluacion":11,"area_id":1,"posicion_id":3,"editable":true}`)

			Convey("Then the request is passed through", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.opened.EmployeeID, ShouldEqual, 42)
				So(deps.opened.Editable, ShouldBeTrue)
				So(w.Body.String(), ShouldContainSubstring, `"estado":"started"`)
			})
		})

		Convey("When a session is opened without an evaluation", func() {
			w := do(mux, http.MethodPost, "/sessions", `{"usuario":42,"area_id":1,"posicion_id":3}`)

			Convey("Then the field is required", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeErr(w).Fields["evaluacion"], ShouldResemble, []string{"required"})
			})
		})

		Convey("When scores are posted", func() {
			w := do(mux, http.MethodPost, "/sessions/s-1/scores", `{"puntos":[{"punto_evaluacion":1,"puntuacion":3},{"punto_evaluacion":2,"observaciones":"ok"}]}`)

			Convey("Then every entry reaches the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(deps.scores), ShouldEqual, 2)
				So(*deps.scores[0].Score, ShouldEqual, 3)
				So(deps.scores[1].Score, ShouldBeNil)
				So(*deps.scores[1].Notes, ShouldEqual, "ok")
			})
		})

		Convey("When a score fails domain validation", func() {
			deps.err = failure.Field(session.ErrInvalidScore, "puntuacion", "4")
			w := do(mux, http.MethodPost, "/sessions/s-1/scores", `{"puntos":[{"punto_evaluacion":1,"puntuacion":4}]}`)

			Convey("Then it is 422 with the field", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeErr(w).Fields["puntuacion"], ShouldResemble, []string{"4"})
			})
		})

		Convey("When a signature without image or signer is posted", func() {
			w := do(mux, http.MethodPost, "/sessions/s-1/signatures", `{"tipo_firma":"empleado"}`)

			Convey("Then it is rejected before the service", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeErr(w).Fields, ShouldContainKey, "imagen")
				So(deps.slot, ShouldBeEmpty)
			})
		})

		Convey("When a signature is captured", func() {
			w := do(mux, http.MethodPost, "/sessions/s-1/signatures", `{"tipo_firma":"empleado","imagen":"data:image/png;base64,AA"}`)

			Convey("Then the image is passed on", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.slot, ShouldEqual, "empleado")
				So(deps.captured.Image.Present(), ShouldBeTrue)
			})
		})

		Convey("When a signature is cleared and removed", func() {
			deps.cleared = true
			wc := do(mux, http.MethodPost, "/sessions/s-1/signatures/supervisor/clear", "")
			wr := do(mux, http.MethodDelete, "/sessions/s-1/signatures/supervisor", "")

			Convey("Then both target the slot", func() {
				So(wc.Code, ShouldEqual, http.StatusOK)
				So(wc.Body.String(), ShouldContainSubstring, `"limpiada":true`)
				So(wr.Code, ShouldEqual, http.StatusOK)
				So(deps.slot, ShouldEqual, "supervisor")
			})
		})

		Convey("When a session is submitted and retried", func() {
			ws := do(mux, http.MethodPost, "/sessions/s-1/submit", "")
			wr := do(mux, http.MethodPost, "/sessions/s-1/signatures/retry", "")

			Convey("Then the result and the reports are returned", func() {
				So(ws.Code, ShouldEqual, http.StatusCreated)
				So(ws.Body.String(), ShouldContainSubstring, `"firmadas":["empleado"]`)
				So(wr.Code, ShouldEqual, http.StatusOK)
				So(wr.Body.String(), ShouldContainSubstring, `"firmadas":["supervisor"]`)
			})
		})

		Convey("When a session is closed", func() {
			w := do(mux, http.MethodDelete, "/sessions/s-1", "")

			Convey("Then there is no content", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
			})
		})

		Convey("When the service is not started", func() {
			deps.err = service.ErrNotStarted
			w := do(mux, http.MethodGet, "/sessions/s-1", "")

			Convey("Then it is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}
