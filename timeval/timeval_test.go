package timeval

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("Given bare numeric literals", t, func() {
		d, err := Parse("70.6")
		So(err, ShouldBeNil)
		So(d.Seconds(), ShouldEqual, 70.6)
	})

	Convey("Given single-unit literals", t, func() {
		cases := []struct {
			literal string
			seconds float64
		}{
			{"70.6s", 70.6},
			{"4500m", 4500 * 60},
			{"1.25h", 1.25 * 3600},
			{"1.25d", 1.25 * 86400},
			{"1.5w", 1.5 * 604800},
			{"18M", 18 * 2629800},
			{"1.5y", 1.5 * 12 * 2629800},
		}
		for _, c := range cases {
			d, err := Parse(c.literal)
			So(err, ShouldBeNil)
			So(d.Seconds(), ShouldAlmostEqual, c.seconds, 1e-9)
		}
	})

	Convey("Given a multi-token literal", t, func() {
		d, err := Parse("1d 23m 2ms")
		So(err, ShouldBeNil)
		So(d.Seconds(), ShouldAlmostEqual, 86400+23*60+2*1e-3, 1e-9)
	})

	Convey("Given an invalid literal", t, func() {
		_, err := Parse("banana")
		So(err, ShouldNotBeNil)

		_, err = Parse("")
		So(err, ShouldNotBeNil)
	})
}

func TestConversions(t *testing.T) {
	Convey("Given 4500 seconds", t, func() {
		d := Duration(4500)
		So(d.Minutes(), ShouldEqual, 75.0)
		So(d.Hours(), ShouldEqual, 1.25)
	})
}

func TestCompare(t *testing.T) {
	Convey("Durations compare and order natively", t, func() {
		a, b := Duration(1), Duration(2)
		So(a.Compare(b), ShouldEqual, -1)
		So(b.Compare(a), ShouldEqual, 1)
		So(a.Compare(a), ShouldEqual, 0)
		So(a < b, ShouldBeTrue)
	})
}
