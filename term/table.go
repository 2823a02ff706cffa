package term

import (
	"github.com/pterm/pterm"
)

// Table renders rows under a header line. Nothing is printed when there are no rows.
func Table(header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, header)
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// Spinner shows an activity indicator while run is working.
// The indicator is skipped when the level hides information messages.
func Spinner(text string, run func() error) error {
	if !enabled(LevelInfo) {
		return run()
	}
	spinner, err := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(text)
	if err != nil {
		return run()
	}
	err = run()
	if err != nil {
		spinner.Fail(text)
		return err
	}
	spinner.Success(text)
	return nil
}
