package cosim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fmucosim/coupling"
	"fmucosim/discipline"
	"fmucosim/master"
	"fmucosim/slave"
	"fmucosim/virtualfmu"

	. "github.com/smartystreets/goconvey/convey"
)

func rampBlock(t *testing.T, name string, h float64) (master.Stepper, map[string]master.ExternalInput) {
	t.Helper()
	finalTime := 0.3
	d, err := discipline.New(func() (slave.Handle, error) { return virtualfmu.NewRamp(), nil }, discipline.Config{
		FinalTime:       &finalTime,
		TimeStep:        0.1,
		UseCoSimulation: true,
	})
	if err != nil {
		t.Fatalf("discipline.New: %v", err)
	}
	block := master.NewDisciplineBlock(name, d, []string{virtualfmu.RampInputH}, []string{"y"}, map[string]string{"y": virtualfmu.RampOutputY})
	return block, map[string]master.ExternalInput{virtualfmu.RampInputH: {Constant: floatPtr(h)}}
}

func floatPtr(v float64) *float64 { return &v }

func TestSystemRunsWithoutMonitor(t *testing.T) {
	Convey("Given a System built over a single ramp block with no monitor enabled", t, func() {
		block, externalForBlock := rampBlock(t, "ramp", 1.0)

		sys, err := New(context.Background(), Options{
			Blocks:      []master.Stepper{block},
			Strategy:    coupling.GaussSeidel,
			InitialTime: 0,
			FinalTime:   0.3,
			StepSize:    0.1,
			External:    map[string]map[string]master.ExternalInput{"ramp": externalForBlock},
		})
		So(err, ShouldBeNil)
		So(sys.monitor, ShouldBeNil)

		Convey("Run drives the master to completion", func() {
			So(sys.Run(context.Background()), ShouldBeNil)

			mat, err := sys.Master.Trajectory().Materialize()
			So(err, ShouldBeNil)
			y := mat.Columns["y"]
			So(y[len(y)-1], ShouldAlmostEqual, 0.3, 1e-9)
		})
	})
}

func TestNewFromConfigAppliesDefaultStrategy(t *testing.T) {
	Convey("Given a config document requesting the jacobi default strategy", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "cosim.yaml")
		body := "kind: cosim\ndef:\n  defaultStrategy: jacobi\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		rampA, externalA := rampBlock(t, "rampA", 1.0)
		doubler := master.StaticBlockStepper{StaticBlock: coupling.NewStaticBlock("doubler", []string{"y"}, []string{"doubled"}, func(in map[string]float64) map[string]float64 {
			return map[string]float64{"doubled": in["y"] * 2}
		})}

		sys, err := NewFromConfig(context.Background(), Options{
			Blocks:      []master.Stepper{rampA, doubler},
			InitialTime: 0,
			FinalTime:   0.3,
			StepSize:    0.1,
			External:    map[string]map[string]master.ExternalInput{"rampA": externalA},
			ConfigPath:  path,
		})
		So(err, ShouldBeNil)

		Convey("The resolved strategy lags the doubler by one macro step, as Jacobi does", func() {
			So(sys.Run(context.Background()), ShouldBeNil)

			mat, err := sys.Master.Trajectory().Materialize()
			So(err, ShouldBeNil)
			y := mat.Columns["y"]
			doubled := mat.Columns["doubled"]
			So(doubled[0], ShouldAlmostEqual, 0.0, 1e-9)
			for i := 1; i < len(y); i++ {
				So(doubled[i], ShouldAlmostEqual, y[i-1]*2, 1e-9)
			}
		})
	})
}
