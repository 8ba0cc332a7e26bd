package db

import (
	"testing"

	"github.com/banshee-data/paramsweep/internal/configtree"
	"github.com/banshee-data/paramsweep/internal/dispatch"
	"github.com/banshee-data/paramsweep/internal/sweep"
)

const settingsXML = `<PhysiCell_settings>
	<user_parameters>
		<space_seperation type="double">0.5</space_seperation>
		<number_of_cells type="int">10</number_of_cells>
	</user_parameters>
</PhysiCell_settings>`

// makeTasks builds two tasks: space_seperation in {0.2, 0.4} with
// number_of_cells fixed at 200.
func makeTasks(t *testing.T) []*dispatch.Task {
	t.Helper()
	doc, err := configtree.ParseBytes("settings.xml", []byte(settingsXML))
	if err != nil {
		t.Fatal(err)
	}
	exp := sweep.NewExperiment(doc, sweep.Options{})
	for _, name := range []string{"sep", "cells"} {
		if _, err := exp.NewStrategy(sweep.KindExplicit, name, sweep.StrategyOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := exp.AddVariable("space_seperation", sweep.TypeFloat, sweep.Path("user_parameters", "space_seperation"),
		sweep.Info{sweep.InfoValues: []float64{0.2, 0.4}}, "sep"); err != nil {
		t.Fatal(err)
	}
	if _, err := exp.AddVariable("number_of_cells", sweep.TypeInt, sweep.Path("user_parameters", "number_of_cells"),
		sweep.Info{sweep.InfoValues: []int{200}}, "cells"); err != nil {
		t.Fatal(err)
	}
	s, err := exp.Generate()
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := dispatch.BuildTasks(exp, s)
	if err != nil {
		t.Fatal(err)
	}
	return tasks
}
