package failure_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/skillcert/internal/domain/failure"
	. "github.com/smartystreets/goconvey/convey"
)

var errMissing = errors.New("supervisor is required")

func TestKinds(t *testing.T) {
	Convey("Given errors of every kind", t, func() {
		v := failure.Field(errMissing, "supervisor")
		tr := failure.Transport(503, "", errors.New("dial tcp: refused"))
		f := failure.Fatal(errors.New("boom"))

		Convey("Then the kind survives wrapping", func() {
			wrapped := fmt.Errorf("submit: %w", v)
			So(failure.KindOf(wrapped), ShouldEqual, failure.KindValidation)
			So(failure.IsValidation(wrapped), ShouldBeTrue)
			So(errors.Is(wrapped, errMissing), ShouldBeTrue)
			So(failure.KindOf(tr), ShouldEqual, failure.KindTransport)
			So(failure.KindOf(f), ShouldEqual, failure.KindFatal)
		})

		Convey("Then unclassified errors are fatal", func() {
			So(failure.KindOf(errors.New("plain")), ShouldEqual, failure.KindFatal)
			So(failure.IsValidation(nil), ShouldBeFalse)
		})

		Convey("Then validation errors expose their fields", func() {
			So(failure.FieldsOf(v), ShouldResemble, map[string][]string{"supervisor": {"supervisor is required"}})
			So(failure.FieldsOf(tr), ShouldBeNil)
		})
	})
}

func TestUserMessage(t *testing.T) {
	Convey("Given transport errors", t, func() {
		Convey("When the backend provided a message", func() {
			err := failure.Transport(400, "evaluación ya registrada", nil)

			Convey("Then that message is shown", func() {
				So(failure.UserMessage(err), ShouldEqual, "evaluación ya registrada")
			})
		})

		Convey("When no message was provided", func() {
			err := failure.Transport(500, "", errors.New("eof"))

			Convey("Then a generic fallback is shown", func() {
				So(failure.UserMessage(err), ShouldEqual, failure.GenericMessage)
				So(failure.UserMessage(errors.New("plain")), ShouldEqual, failure.GenericMessage)
			})
		})

		Convey("When only fields are known", func() {
			err := &failure.Error{Kind: failure.KindValidation, Fields: map[string][]string{
				"puntuacion": {"must be 1, 2 or 3"},
				"evaluacion": {"required"},
			}}

			Convey("Then fields are listed in key order", func() {
				So(failure.UserMessage(err), ShouldEqual, "evaluacion: required, puntuacion: must be 1, 2 or 3")
				So(err.Error(), ShouldStartWith, "validation: evaluacion")
			})
		})
	})
}
