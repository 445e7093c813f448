package fuzzer

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/valyala/fastjson"
	"gopkg.in/yaml.v2"
)

// Token describes how the fuzzer obtains the bearer it attaches to every
// request when fuzzing an API behind auth. Either a hardcoded bearer or a
// login request whose JSON response carries the token under Key.
type Token struct {
	URL         string `yaml:"url"`
	Method      string `yaml:"method"`
	ContentType string `yaml:"type"`
	Body        string `yaml:"body"`

	// Key locates the token inside the login response, e.g. "access_token"
	// or "user{token}" for nested objects, "data[{token}]" for arrays.
	Key string `yaml:"key"`

	// Bearer is used directly when Hardcode is set.
	Bearer   string `yaml:"bearer"`
	Hardcode bool   `yaml:"hardcode"`
}

// LoadToken reads a token description from a YAML file.
func LoadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	t := &Token{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return t, nil
}

// Fetch resolves the bearer, performing the login request unless the token
// is hardcoded. A failure here is startup-fatal: fuzzing an authed API
// without credentials only measures the auth middleware.
func (t *Token) Fetch(client *http.Client) (string, error) {
	if t.Hardcode {
		if t.Bearer == "" {
			return "", fmt.Errorf("hardcoded token is empty")
		}
		return t.Bearer, nil
	}

	method := t.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequest(method, t.URL, strings.NewReader(t.Body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	if t.ContentType != "" {
		req.Header.Set("Content-Type", t.ContentType)
	}

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	v, err := fastjson.ParseBytes(body)
	if err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if keys := splitKeyPath(t.Key); len(keys) > 0 {
		v = v.Get(keys...)
	}
	bearer := string(v.GetStringBytes())
	if bearer == "" {
		return "", fmt.Errorf("no token under key %q", t.Key)
	}
	return bearer, nil
}

// splitKeyPath turns "user{token}" style key paths into fastjson key chains.
// "[" selects the first array element.
func splitKeyPath(s string) []string {
	keys := []string{}
	key := ""
	for _, c := range s {
		switch c {
		case '{':
			keys = append(keys, key)
			key = ""
		case '[':
			keys = append(keys, key)
			key = "0"
		case '}', ']':
			if len(key) > 0 {
				keys = append(keys, key)
				key = ""
			}
		default:
			key += string(c)
		}
	}
	if len(key) > 0 {
		keys = append(keys, key)
	}
	return keys
}
