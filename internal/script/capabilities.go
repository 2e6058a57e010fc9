package script

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/risor-io/risor/object"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/httpclient"
	"github.com/opencode-ai/promptchain/internal/logging"
)

func logEvent(logger zerolog.Logger, level string) *zerolog.Event {
	return logging.Event(logger, level)
}

func (s *Sandbox) httpModule() *object.Module {
	return object.NewBuiltinsModule("http", map[string]object.Object{
		"request": object.NewBuiltin("request", s.httpRequest),
		"get":     object.NewBuiltin("get", s.httpGet),
		"post":    object.NewBuiltin("post", s.httpPost),
	})
}

// request({"method": "POST", "url": "...", "headers": {...}, "body": ...})
func (s *Sandbox) httpRequest(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 1 {
		return object.NewArgsError("http.request", 1, len(args))
	}
	opts, ok := args[0].(*object.Map)
	if !ok {
		return argError("http.request", "a map", args[0])
	}
	fields, _ := ToGo(opts).(map[string]any)

	req := httpclient.Request{
		Method:  stringField(fields, "method"),
		URL:     stringField(fields, "url"),
		Headers: headerField(fields["headers"]),
		Body:    bodyText(fields["body"]),
	}
	return s.doRequest(ctx, req)
}

// get(url, headers?)
func (s *Sandbox) httpGet(ctx context.Context, args ...object.Object) object.Object {
	if len(args) < 1 || len(args) > 2 {
		return object.NewArgsRangeError("http.get", 1, 2, len(args))
	}
	url, err := object.AsString(args[0])
	if err != nil {
		return err
	}
	req := httpclient.Request{Method: http.MethodGet, URL: url}
	if len(args) == 2 {
		req.Headers = headerField(ToGo(args[1]))
	}
	return s.doRequest(ctx, req)
}

// post(url, body, headers?)
func (s *Sandbox) httpPost(ctx context.Context, args ...object.Object) object.Object {
	if len(args) < 2 || len(args) > 3 {
		return object.NewArgsRangeError("http.post", 2, 3, len(args))
	}
	url, err := object.AsString(args[0])
	if err != nil {
		return err
	}
	req := httpclient.Request{Method: http.MethodPost, URL: url, Body: bodyText(ToGo(args[1]))}
	if len(args) == 3 {
		req.Headers = headerField(ToGo(args[2]))
	}
	return s.doRequest(ctx, req)
}

func (s *Sandbox) doRequest(ctx context.Context, req httpclient.Request) object.Object {
	if s.http == nil {
		return object.Errorf("http capability is not configured")
	}
	if req.URL == "" {
		return object.Errorf("http request requires a url")
	}
	resp, err := s.http.Do(ctx, req)
	if err != nil {
		return object.NewError(err)
	}

	var data any = resp.BodyText
	var decoded any
	if err := json.Unmarshal([]byte(resp.BodyText), &decoded); err == nil {
		data = decoded
	}
	return FromGo(map[string]any{
		"status":  resp.Status,
		"headers": resp.Headers,
		"data":    data,
		"text":    resp.BodyText,
	})
}

func (s *Sandbox) storageModule() *object.Module {
	return object.NewBuiltinsModule("storage", map[string]object.Object{
		"get": object.NewBuiltin("get", s.storageGet),
		"set": object.NewBuiltin("set", s.storageSet),
	})
}

// get(key, default?)
func (s *Sandbox) storageGet(ctx context.Context, args ...object.Object) object.Object {
	if len(args) < 1 || len(args) > 2 {
		return object.NewArgsRangeError("storage.get", 1, 2, len(args))
	}
	if s.storage == nil {
		return object.Errorf("storage capability is not configured")
	}
	key, err := object.AsString(args[0])
	if err != nil {
		return err
	}
	var def any
	if len(args) == 2 {
		def = ToGo(args[1])
	}
	value, getErr := s.storage.Get(ctx, key, def)
	if getErr != nil {
		return object.NewError(getErr)
	}
	return FromGo(value)
}

// set(key, value)
func (s *Sandbox) storageSet(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewArgsError("storage.set", 2, len(args))
	}
	if s.storage == nil {
		return object.Errorf("storage capability is not configured")
	}
	key, err := object.AsString(args[0])
	if err != nil {
		return err
	}
	if setErr := s.storage.Set(ctx, key, ToGo(args[1])); setErr != nil {
		return object.NewError(setErr)
	}
	return object.Nil
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func headerField(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
			continue
		}
		data, _ := json.Marshal(val)
		out[k] = string(data)
	}
	return out
}

func bodyText(v any) string {
	switch body := v.(type) {
	case nil:
		return ""
	case string:
		return body
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
