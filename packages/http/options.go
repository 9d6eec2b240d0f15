package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	neturl "net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/ddtspec/packages/builtin"
)

// Options is the decoded form of a case or hook options map.
type Options struct {
	Headers    map[string]string
	Body       any
	HasBody    bool
	JSON       bool
	Query      neturl.Values
	Form       neturl.Values
	FormData   []FormField
	Parameters map[string]string
	Auth       *Auth
	Timeout    time.Duration
	// BaseDir anchors relative file paths in FormData.
	BaseDir string
}

// FormField is one multipart part. File parts carry a path instead of a value.
type FormField struct {
	Name  string
	Value string
	File  string
}

type Auth struct {
	Basic  *BasicAuth
	Bearer string
	Digest *DigestCredentials
	OAuth2 *OAuth2Credentials
}

type BasicAuth struct {
	Username string
	Password string
}

// DecodeOptions reads the recognised keys of an options map. Unknown keys
// are ignored.
func DecodeOptions(m map[string]any) (*Options, error) {
	opts := &Options{}
	if len(m) == 0 {
		return opts, nil
	}

	if raw, ok := m["headers"]; ok {
		headers, err := stringMap("headers", raw)
		if err != nil {
			return nil, err
		}
		opts.Headers = headers
	}

	if raw, ok := m["body"]; ok {
		opts.Body = raw
		opts.HasBody = raw != nil
	}

	if raw, ok := m["json"]; ok {
		b, isBool := raw.(bool)
		if !isBool {
			return nil, fmt.Errorf("options.json must be a boolean, got %T", raw)
		}
		opts.JSON = b
	}

	for _, key := range []string{"qs", "query"} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		values, err := urlValues(key, raw)
		if err != nil {
			return nil, err
		}
		if opts.Query == nil {
			opts.Query = values
			continue
		}
		for k, v := range values {
			opts.Query[k] = v
		}
	}

	if raw, ok := m["form"]; ok {
		values, err := urlValues("form", raw)
		if err != nil {
			return nil, err
		}
		opts.Form = values
	}

	if raw, ok := m["formData"]; ok {
		fields, err := formFields(raw)
		if err != nil {
			return nil, err
		}
		opts.FormData = fields
	}

	if raw, ok := m["parameters"]; ok {
		params, err := stringMap("parameters", raw)
		if err != nil {
			return nil, err
		}
		opts.Parameters = params
	}

	if raw, ok := m["auth"]; ok && raw != nil {
		auth, err := decodeAuth(raw)
		if err != nil {
			return nil, err
		}
		opts.Auth = auth
	}

	if raw, ok := m["timeout"]; ok && raw != nil {
		ms, isNum := builtin.ToNumber(raw)
		if !isNum || ms < 0 {
			return nil, fmt.Errorf("options.timeout must be a non-negative number of milliseconds, got %v", raw)
		}
		opts.Timeout = time.Duration(ms * float64(time.Millisecond))
	}

	if raw, ok := m["baseDir"].(string); ok {
		opts.BaseDir = raw
	}

	return opts, nil
}

// BuildURL substitutes {name} parameters and appends query values.
func (o *Options) BuildURL(rawURL string) string {
	result := rawURL
	for name, value := range o.Parameters {
		result = strings.ReplaceAll(result, "{"+name+"}", neturl.PathEscape(value))
	}

	if len(o.Query) == 0 {
		return result
	}

	u, err := neturl.Parse(result)
	if err != nil {
		return result
	}
	q := u.Query()
	for k, vs := range o.Query {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// encodeBody picks multipart, then url-encoded form, then body.
func (o *Options) encodeBody() ([]byte, string, error) {
	switch {
	case len(o.FormData) > 0:
		buf, contentType, err := buildMultipartBody(o.FormData, o.BaseDir)
		if err != nil {
			return nil, "", err
		}
		return buf.Bytes(), contentType, nil
	case len(o.Form) > 0:
		return []byte(o.Form.Encode()), "application/x-www-form-urlencoded", nil
	case o.HasBody:
		if s, ok := o.Body.(string); ok && !o.JSON {
			return []byte(s), "", nil
		}
		data, err := json.Marshal(o.Body)
		if err != nil {
			return nil, "", fmt.Errorf("cannot encode request body: %w", err)
		}
		return data, "application/json", nil
	}
	return nil, "", nil
}

func (o *Options) applyAuth(req *http.Request) {
	if o.Auth == nil {
		return
	}
	switch {
	case o.Auth.Basic != nil:
		creds := o.Auth.Basic.Username + ":" + o.Auth.Basic.Password
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	case o.Auth.Bearer != "":
		req.Header.Set("Authorization", "Bearer "+o.Auth.Bearer)
	}
}

func decodeAuth(raw any) (*Auth, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("options.auth must be an object, got %T", raw)
	}
	auth := &Auth{}
	if b, ok := m["basic"]; ok {
		creds, err := stringMap("auth.basic", b)
		if err != nil {
			return nil, err
		}
		auth.Basic = &BasicAuth{Username: creds["username"], Password: creds["password"]}
	}
	if b, ok := m["bearer"]; ok {
		auth.Bearer = builtin.ToString(b)
	}
	if d, ok := m["digest"]; ok {
		creds, err := stringMap("auth.digest", d)
		if err != nil {
			return nil, err
		}
		auth.Digest = &DigestCredentials{Username: creds["username"], Password: creds["password"]}
	}
	if o, ok := m["oauth2"]; ok {
		creds, err := decodeOAuth2(o)
		if err != nil {
			return nil, err
		}
		auth.OAuth2 = creds
	}
	if auth.Basic == nil && auth.Bearer == "" && auth.Digest == nil && auth.OAuth2 == nil {
		return nil, fmt.Errorf("options.auth needs one of basic, bearer, digest or oauth2")
	}
	return auth, nil
}

func stringMap(field string, raw any) (map[string]string, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("options.%s must be an object, got %T", field, raw)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = builtin.ToString(v)
	}
	return out, nil
}

func urlValues(field string, raw any) (neturl.Values, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		values, err := neturl.ParseQuery(strings.TrimPrefix(v, "?"))
		if err != nil {
			return nil, fmt.Errorf("options.%s: %w", field, err)
		}
		return values, nil
	case map[string]any:
		values := neturl.Values{}
		for k, item := range v {
			if list, ok := item.([]any); ok {
				for _, elem := range list {
					values.Add(k, builtin.ToString(elem))
				}
				continue
			}
			values.Set(k, builtin.ToString(item))
		}
		return values, nil
	}
	return nil, fmt.Errorf("options.%s must be an object or a string, got %T", field, raw)
}

// formFields accepts {name: value} or {name: {file: path}}; parts are
// emitted in name order.
func formFields(raw any) ([]FormField, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("options.formData must be an object, got %T", raw)
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]FormField, 0, len(names))
	for _, name := range names {
		if spec, ok := m[name].(map[string]any); ok {
			path, _ := spec["file"].(string)
			if path == "" {
				return nil, fmt.Errorf("options.formData.%s: object parts need a file path", name)
			}
			fields = append(fields, FormField{Name: name, File: path})
			continue
		}
		fields = append(fields, FormField{Name: name, Value: builtin.ToString(m[name])})
	}
	return fields, nil
}

func buildMultipartBody(fields []FormField, baseDir string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, field := range fields {
		if field.File == "" {
			if err := writer.WriteField(field.Name, field.Value); err != nil {
				return nil, "", err
			}
			continue
		}

		filePath := field.File
		if !filepath.IsAbs(filePath) && baseDir != "" {
			filePath = filepath.Join(baseDir, filePath)
		}
		if err := validatePathWithinBase(filePath, baseDir); err != nil {
			return nil, "", err
		}

		file, err := os.Open(filePath)
		if err != nil {
			return nil, "", err
		}
		part, err := writer.CreateFormFile(field.Name, filepath.Base(filePath))
		if err != nil {
			file.Close()
			return nil, "", err
		}
		_, err = io.Copy(part, file)
		file.Close()
		if err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// validatePathWithinBase rejects upload paths that escape the descriptor's
// directory.
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}
	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}
	return nil
}
