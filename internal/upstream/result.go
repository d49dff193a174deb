package upstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// BodyKind describes how a successful response body was interpreted.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyJSON
	BodyText
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyText:
		return "text"
	default:
		return "empty"
	}
}

// Result is a successful dispatcher response.
type Result struct {
	Status int
	Kind   BodyKind
	Raw    []byte
}

// Empty reports a 204 or a blank body.
func (r *Result) Empty() bool { return r == nil || r.Kind == BodyEmpty }

// Text returns the body as a string.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Raw)
}

// Decode unmarshals a JSON body into v. Empty results leave v untouched.
func (r *Result) Decode(v any) error {
	switch {
	case r.Empty():
		return nil
	case r.Kind != BodyJSON:
		return fmt.Errorf("response body is %s, not json", r.Kind)
	}
	return json.Unmarshal(r.Raw, v)
}

// Get reads a gjson path from a JSON body.
func (r *Result) Get(path string) gjson.Result {
	if r == nil || r.Kind != BodyJSON {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Raw, path)
}

// DecodeAs decodes a JSON result into a new T.
func DecodeAs[T any](r *Result) (T, error) {
	var out T
	err := r.Decode(&out)
	return out, err
}

// ReadAll 读取并返回响应体，读取完成后自动关闭。
func ReadAll(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
