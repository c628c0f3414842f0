package mirror

import (
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// DecodeJSON unmarshals the file's content into v. Fails with
// ErrInvalidOperation on directories.
func (n *Node) DecodeJSON(v any) error {
	data, err := n.Data()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// DecodeYAML unmarshals the file's content into v. Fails with
// ErrInvalidOperation on directories.
func (n *Node) DecodeYAML(v any) error {
	data, err := n.Data()
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
