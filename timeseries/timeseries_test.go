package timeseries

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given matching, strictly increasing inputs", t, func() {
		s, err := New([]float64{1, 2}, []float64{3, 4})
		So(err, ShouldBeNil)
		So(s.Size(), ShouldEqual, 2)
	})

	Convey("Given mismatched lengths", t, func() {
		_, err := New([]float64{1, 2}, []float64{3, 4, 5})
		So(err, ShouldNotBeNil)
	})

	Convey("Given non-monotonic time points", t, func() {
		_, err := New([]float64{1, 1}, []float64{3, 4})
		So(err, ShouldNotBeNil)

		_, err = New([]float64{2, 1}, []float64{3, 4})
		So(err, ShouldNotBeNil)
	})
}

func TestAtHold(t *testing.T) {
	Convey("Given a parameter-causality series", t, func() {
		s, err := New([]float64{0, 0.9}, []float64{1, 2})
		So(err, ShouldBeNil)

		Convey("A query below the first point fails", func() {
			_, err := s.At(-0.1, Hold)
			So(err, ShouldNotBeNil)
		})

		Convey("A query at or after a stored point holds its value", func() {
			v, err := s.At(0, Hold)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 1)

			v, err = s.At(0.5, Hold)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 1)

			v, err = s.At(0.9, Hold)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 2)

			v, err = s.At(5, Hold)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 2)
		})
	})
}

func TestAtLinear(t *testing.T) {
	Convey("Given an input-causality series", t, func() {
		s, err := New([]float64{0, 0.5, 0.7}, []float64{0, 1, 0})
		So(err, ShouldBeNil)

		Convey("A query between points interpolates", func() {
			v, err := s.At(0.25, Linear)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 0.5)
		})

		Convey("A query past the last point holds the final value", func() {
			v, err := s.At(10, Linear)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 0)
		})
	})
}

func TestEqual(t *testing.T) {
	Convey("Two series with identical fields are equal", t, func() {
		a, _ := New([]float64{0, 1}, []float64{2, 3})
		b, _ := New([]float64{0, 1}, []float64{2, 3})
		So(a.Equal(b), ShouldBeTrue)

		c, _ := New([]float64{0, 1}, []float64{2, 4})
		So(a.Equal(c), ShouldBeFalse)
	})
}
