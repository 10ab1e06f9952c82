package selftest

import "testing"

func TestRunAllScenariosPass(t *testing.T) {
	for _, c := range Run(7) {
		if !c.Passed {
			t.Errorf("%s: %s", c.Name, c.Detail)
		}
	}
}
