package storage

import "encoding/json"

// Values are stored as JSON: the records are small, the schema evolves
// painlessly and the database stays inspectable with standard tooling.

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}
