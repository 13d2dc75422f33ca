package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/okian/skillcert/internal/domain/failure"
)

// messageKeys are checked in order for a single human readable message.
var messageKeys = []string{"detail", "message", "error"}

// normalize turns a non-2xx body into a failure.Error. The backend answers
// with a plain string, a list of strings, an object with a message, or a
// field map; a field map on 400/422 becomes a validation error.
func normalize(status int, body []byte) error {
	cause := fmt.Errorf("backend responded %d %s", status, http.StatusText(status))

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return failure.Transport(status, "", cause)
	}

	switch v := raw.(type) {
	case string:
		return failure.Transport(status, v, cause)
	case []any:
		return failure.Transport(status, strings.Join(texts(v), "; "), cause)
	case map[string]any:
		for _, k := range messageKeys {
			if s, ok := v[k].(string); ok && s != "" {
				return failure.Transport(status, s, cause)
			}
		}
		fields := make(map[string][]string, len(v))
		for k, item := range v {
			if msgs := texts(item); len(msgs) > 0 {
				fields[k] = msgs
			}
		}
		if len(fields) > 0 && (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) {
			return &failure.Error{Kind: failure.KindValidation, Fields: fields, Status: status, Err: cause}
		}
	}
	return failure.Transport(status, "", cause)
}

func texts(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, texts(item)...)
		}
		return out
	case map[string]any:
		var out []string
		for k, item := range t {
			for _, s := range texts(item) {
				out = append(out, k+": "+s)
			}
		}
		sort.Strings(out)
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(t)}
	}
}
