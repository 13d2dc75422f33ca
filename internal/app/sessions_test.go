package service_test

import (
	"context"
	"errors"
	"testing"

	service "github.com/okian/skillcert/internal/app"
	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/internal/domain/session"
	"github.com/okian/skillcert/internal/domain/signature"
	. "github.com/smartystreets/goconvey/convey"
)

func score(q int64, v int) service.ScoreInput {
	return service.ScoreInput{QuestionID: q, Score: &v}
}

func TestService_OpenSession(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := started(newBackend())
		defer svc.Stop()
		ctx := context.Background()

		Convey("When an employee without a result is opened", func() {
			v, err := svc.OpenSession(ctx, service.SessionRequest{EmployeeID: 43, EvaluationID: 11, AreaID: 1, PositionID: 3})

			Convey("Then a scoring session starts with the group supervisor", func() {
				So(err, ShouldBeNil)
				So(v.ID, ShouldNotBeEmpty)
				So(v.State, ShouldEqual, session.StateStarted)
				So(v.Employee.FullName, ShouldEqual, "Pedro Gil")
				So(*v.SupervisorID, ShouldEqual, 70)
				So(v.Rows, ShouldHaveLength, 2)
				So(svc.GetStats()["sessions"], ShouldEqual, 1)
			})
		})

		Convey("When an employee with a saved result is opened", func() {
			v, err := svc.OpenSession(ctx, service.SessionRequest{EmployeeID: 42, EvaluationID: 11, AreaID: 1, PositionID: 3, Editable: true})

			Convey("Then it is read-only and locked", func() {
				So(err, ShouldBeNil)
				So(v.State, ShouldEqual, session.StateReadOnly)
				So(v.Editable, ShouldBeFalse)
				So(v.Employee.FullName, ShouldEqual, "Marta Ruiz")
				So(v.Signatures[model.EmployeeSlot], ShouldEqual, signature.StateCommitted)

				_, err := svc.Score(ctx, v.ID, []service.ScoreInput{score(1, 2)})
				So(errors.Is(err, session.ErrReadOnly), ShouldBeTrue)
			})
		})

		Convey("When the evaluation or the employee is unknown", func() {
			_, errEval := svc.OpenSession(ctx, service.SessionRequest{EmployeeID: 43, EvaluationID: 99, AreaID: 1, PositionID: 3})
			_, errEmp := svc.OpenSession(ctx, service.SessionRequest{EmployeeID: 7, EvaluationID: 11, AreaID: 1, PositionID: 3})

			Convey("Then both are not found", func() {
				So(errors.Is(errEval, service.ErrEvaluationNotFound), ShouldBeTrue)
				So(errors.Is(errEmp, service.ErrEmployeeNotFound), ShouldBeTrue)
				So(service.IsNotFound(errEval), ShouldBeTrue)
			})
		})
	})
}

func TestService_SessionFlow(t *testing.T) {
	Convey("Given an open session for an employee without a result", t, func() {
		backend := newBackend()
		svc := started(backend)
		defer svc.Stop()
		ctx := context.Background()

		v, err := svc.OpenSession(ctx, service.SessionRequest{EmployeeID: 43, EvaluationID: 11, AreaID: 1, PositionID: 3})
		So(err, ShouldBeNil)
		id := v.ID

		Convey("When it is submitted unscored", func() {
			_, err := svc.Submit(ctx, id)

			Convey("Then the missing questions are listed", func() {
				So(failure.IsValidation(err), ShouldBeTrue)
				So(failure.FieldsOf(err), ShouldContainKey, "resultados_puntos")
			})
		})

		Convey("When every question is scored", func() {
			notes := "Sin incidencias"
			v, err := svc.Score(ctx, id, []service.ScoreInput{
				score(1, 3),
				{QuestionID: 2, Score: func() *int { s := 2; return &s }(), Notes: &notes},
			})

			Convey("Then the preview is computed", func() {
				So(err, ShouldBeNil)
				So(v.Preview.Obtained, ShouldEqual, 5)
				So(v.Preview.Scored, ShouldEqual, 2)
				So(v.Rows[1].Notes, ShouldEqual, notes)
			})

			Convey("And an out of range score is rejected", func() {
				_, err := svc.Score(ctx, id, []service.ScoreInput{score(1, 4)})
				So(errors.Is(err, session.ErrInvalidScore), ShouldBeTrue)
			})

			Convey("And the submit without employee signature is rejected", func() {
				_, err := svc.Submit(ctx, id)
				So(errors.Is(err, signature.ErrEmployeeSignatureRequired), ShouldBeTrue)
			})

			Convey("And the employee signs and the evaluation is submitted", func() {
				_, err := svc.SelectSupervisor(ctx, id, 71)
				So(err, ShouldBeNil)
				_, err = svc.CaptureSignature(ctx, id, model.EmployeeSlot, model.PendingSignature{Image: "data:image/png;base64,AAAA"})
				So(err, ShouldBeNil)

				out, err := svc.Submit(ctx, id)

				Convey("Then the result is saved with the employee signature", func() {
					So(err, ShouldBeNil)
					So(out.Result.ID, ShouldEqual, 501)
					So(out.Result.SupervisorID, ShouldEqual, 71)
					So(out.Signatures.Committed, ShouldResemble, []string{model.EmployeeSlot})
					So(out.Signatures.Failed, ShouldBeEmpty)
				})

				Convey("Then the level summary is recomputed", func() {
					sum, ok := svc.Cache().Get(43)
					So(ok, ShouldBeTrue)
					So(sum.Progress[1].Total, ShouldEqual, 1)
					So(sum.Completed(1), ShouldBeFalse)
				})

				Convey("Then a second submit is rejected", func() {
					_, err := svc.Submit(ctx, id)
					So(err, ShouldNotBeNil)
					So(failure.IsValidation(err), ShouldBeTrue)
				})
			})

			Convey("And the employee commit fails", func() {
				backend.commitErr[model.EmployeeSlot] = failure.Transport(0, "", errors.New("timeout"))
				_, err := svc.CaptureSignature(ctx, id, model.EmployeeSlot, model.PendingSignature{Image: "img"})
				So(err, ShouldBeNil)

				out, err := svc.Submit(ctx, id)

				Convey("Then the result is saved and the slot is reported", func() {
					So(err, ShouldBeNil)
					So(out.Signatures.Failed, ShouldHaveLength, 1)
					So(out.Signatures.Failed[0].Type, ShouldEqual, model.EmployeeSlot)
					So(out.Signatures.Failed[0].Message, ShouldEqual, failure.GenericMessage)
				})

				Convey("Then a retry commits it", func() {
					delete(backend.commitErr, model.EmployeeSlot)
					report, err := svc.RetrySignatures(ctx, id)
					So(err, ShouldBeNil)
					So(report.Committed, ShouldResemble, []string{model.EmployeeSlot})

					v, err := svc.Session(ctx, id)
					So(err, ShouldBeNil)
					So(v.Signatures[model.EmployeeSlot], ShouldEqual, signature.StateCommitted)
				})
			})
		})

		Convey("When a captured signature is cleared and removed", func() {
			_, err := svc.CaptureSignature(ctx, id, "supervisor", model.PendingSignature{Image: "img"})
			So(err, ShouldBeNil)
			cleared, err := svc.ClearSignature(ctx, id, "supervisor")
			So(err, ShouldBeNil)
			_, err = svc.RemoveSignature(ctx, id, "supervisor")

			Convey("Then the slot is unset", func() {
				So(cleared, ShouldBeTrue)
				So(err, ShouldBeNil)
				v, _ := svc.Session(ctx, id)
				So(v.Signatures["supervisor"], ShouldEqual, signature.StateUnset)
			})
		})

		Convey("When an unknown supervisor is selected", func() {
			_, err := svc.SelectSupervisor(ctx, id, 5)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, session.ErrUnknownSupervisor), ShouldBeTrue)
			})
		})

		Convey("When the session is closed", func() {
			So(svc.CloseSession(ctx, id), ShouldBeNil)
			_, err := svc.Session(ctx, id)

			Convey("Then it is forgotten", func() {
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
				So(svc.GetStats()["sessions"], ShouldEqual, 0)
			})
		})
	})
}
