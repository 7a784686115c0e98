package snapshot

import (
	"bytes"
	"testing"

	"fmucosim/trajectory"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	Convey("Given a state built from a populated trajectory store", t, func() {
		store := trajectory.NewStore()
		So(store.AppendRow("ramp", 0.0, map[string]float64{"y": 0.0}), ShouldBeNil)
		So(store.AppendRow("ramp", 0.1, map[string]float64{"y": 0.1}), ShouldBeNil)
		So(store.AppendRow("ramp", 0.2, map[string]float64{"y": 0.2}), ShouldBeNil)

		state := BuildState(0.2, map[string][]byte{"ramp": []byte(`{"h":1}`)}, store)

		Convey("Save then Load reproduces the same state", func() {
			var buf bytes.Buffer
			So(Save(&buf, state), ShouldBeNil)

			loaded, err := Load(&buf)
			So(err, ShouldBeNil)
			So(loaded.TCurrent, ShouldEqual, 0.2)
			So(loaded.SlaveBlobs["ramp"], ShouldResemble, []byte(`{"h":1}`))

			rows, ok := loaded.Trajectory["ramp"]
			So(ok, ShouldBeTrue)
			So(rows.Time, ShouldResemble, []float64{0.0, 0.1, 0.2})
			So(rows.Outputs["y"], ShouldResemble, []float64{0.0, 0.1, 0.2})
		})

		Convey("Restore rebuilds a trajectory.Store that materializes identically", func() {
			var buf bytes.Buffer
			So(Save(&buf, state), ShouldBeNil)
			loaded, err := Load(&buf)
			So(err, ShouldBeNil)

			restored, err := Restore(loaded)
			So(err, ShouldBeNil)

			original, err := store.Materialize()
			So(err, ShouldBeNil)
			after, err := restored.Materialize()
			So(err, ShouldBeNil)
			So(after.Columns, ShouldResemble, original.Columns)
		})
	})
}

func TestRestorePreservesLastSample(t *testing.T) {
	Convey("Given a restored store", t, func() {
		store := trajectory.NewStore()
		So(store.AppendRow("block", 0.0, map[string]float64{"out": 1.0}), ShouldBeNil)
		So(store.AppendRow("block", 1.0, map[string]float64{"out": 2.0}), ShouldBeNil)

		state := BuildState(1.0, nil, store)
		restored, err := Restore(state)
		So(err, ShouldBeNil)

		Convey("The last appended sample survives materialization", func() {
			mat, err := restored.Materialize()
			So(err, ShouldBeNil)
			out := mat.Columns["out"]
			So(out[len(out)-1], ShouldEqual, 2.0)
		})
	})
}
