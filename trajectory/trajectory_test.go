package trajectory

import (
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAppendAndMaterialize(t *testing.T) {
	Convey("Given a store fed two macro steps for one block", t, func() {
		s := NewStore()
		So(s.AppendRow("ramp", 0.0, map[string]float64{"y": 0.0}), ShouldBeNil)
		So(s.AppendRow("ramp", 0.2, map[string]float64{"y": 0.4}), ShouldBeNil)

		Convey("Materialize produces a time column and the output column of matching length", func() {
			m, err := s.Materialize()
			So(err, ShouldBeNil)
			So(m.Columns["ramp:time"], ShouldResemble, []float64{0.0, 0.2})
			So(m.Columns["y"], ShouldResemble, []float64{0.0, 0.4})
		})
	})
}

func TestNonMonotonicTimeRejected(t *testing.T) {
	Convey("Given a store whose second append goes backward in time", t, func() {
		s := NewStore()
		So(s.AppendRow("ramp", 0.2, map[string]float64{"y": 0.4}), ShouldBeNil)

		Convey("AppendRow fails", func() {
			err := s.AppendRow("ramp", 0.1, map[string]float64{"y": 0.2})
			So(errors.Is(err, ErrNonMonotonicTime), ShouldBeTrue)
		})
	})
}

func TestReset(t *testing.T) {
	Convey("Given a populated store", t, func() {
		s := NewStore()
		So(s.AppendRow("ramp", 0.0, map[string]float64{"y": 0.0}), ShouldBeNil)

		Convey("Reset clears every block", func() {
			s.Reset()

			m, err := s.Materialize()
			So(err, ShouldBeNil)
			So(len(m.Columns), ShouldEqual, 0)
		})
	})
}

func TestConcurrentAppendAcrossBlocks(t *testing.T) {
	Convey("Given two independently-written blocks appended from separate goroutines", t, func() {
		s := NewStore()
		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.AppendRow("a", float64(i), map[string]float64{"out_a": float64(i)})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.AppendRow("b", float64(i), map[string]float64{"out_b": float64(i) * 2})
			}
		}()
		wg.Wait()

		Convey("Both blocks materialize with 50 samples each", func() {
			m, err := s.Materialize()
			So(err, ShouldBeNil)
			So(len(m.Columns["a:time"]), ShouldEqual, 50)
			So(len(m.Columns["b:time"]), ShouldEqual, 50)
		})
	})
}
