package report

import (
	"encoding/json"
	"io"
)

// JSONRenderer renders reports as indented JSON. Absent optional values
// marshal as null through their pointer fields.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(w io.Writer, rep *Report) error {
	return writeJSON(w, rep)
}

func (r *JSONRenderer) RenderAll(w io.Writer, reps []*Report) error {
	return writeJSON(w, reps)
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
