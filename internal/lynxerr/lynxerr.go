// Package lynxerr carries structured render errors to session clients.
//
// Sub codes are four or five digit numbers whose leading digits (sub code /
// 100) give the error code family.
package lynxerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelFatal Level = "fatal"
)

// Origin is where an error was raised.
type Origin int

const (
	OriginHost Origin = iota - 3
	OriginScript
	OriginEngine
)

var originNames = map[Origin]string{
	OriginHost:   "host",
	OriginScript: "script",
	OriginEngine: "engine",
}

func (o Origin) String() string {
	if s, ok := originNames[o]; ok {
		return s
	}
	return "unknown"
}

// Error code families.
const (
	CodeBundleLoad   = 100
	CodeBundleReload = 101
	CodeBundleVerify = 102
	CodeDataUpdate   = 103
	CodeLifecycle    = 104
	CodeResource     = 105
	CodeScript       = 201
	CodeBackground   = 202
)

// Sub codes.
const (
	SubTemplateFetch     = 10001
	SubTemplateEmpty     = 10002
	SubTemplateDecode    = 10003
	SubReloadBeforeLoad  = 10101
	SubBundleInvalid     = 10201
	SubDataInvalid       = 10301
	SubProcessorMissing  = 10302
	SubDestroyTimeout    = 10401
	SubEngineCreate      = 10402
	SubResourceScheme    = 10501
	SubScriptException   = 20101
	SubRuntimeDestroyed  = 20201
	SubRuntimeNotStarted = 20202
)

const contextPrefix = "lynx_context_"

type Error struct {
	SubCode       int
	Message       string
	FixSuggestion string
	Level         Level
	Origin        Origin
	TemplateURL   string
	CallStack     string
	RootCause     string
	CustomInfo    map[string]string

	cause error
}

func New(subCode int, msg string) *Error {
	return &Error{
		SubCode: subCode,
		Message: msg,
		Level:   LevelError,
		Origin:  OriginHost,
	}
}

func Newf(subCode int, format string, args ...any) *Error {
	return New(subCode, fmt.Sprintf(format, args...))
}

// Wrap builds an Error whose root cause is err.
func Wrap(subCode int, err error, msg string) *Error {
	e := New(subCode, msg)
	if err != nil {
		e.cause = err
		e.RootCause = err.Error()
	}
	return e
}

// Warn downgrades the level and returns e.
func (e *Error) Warn() *Error {
	e.Level = LevelWarn
	return e
}

func (e *Error) WithOrigin(o Origin) *Error {
	e.Origin = o
	return e
}

func (e *Error) WithURL(url string) *Error {
	e.TemplateURL = url
	return e
}

func (e *Error) WithCallStack(stack string) *Error {
	e.CallStack = stack
	return e
}

// AddCustomInfo records key/value. Keys prefixed with "lynx_context_" are
// reported under the context object.
func (e *Error) AddCustomInfo(key, value string) *Error {
	if key == "" || value == "" {
		return e
	}
	if e.CustomInfo == nil {
		e.CustomInfo = make(map[string]string)
	}
	e.CustomInfo[key] = value
	return e
}

// AddContextInfo is AddCustomInfo with the context prefix applied.
func (e *Error) AddContextInfo(key, value string) *Error {
	return e.AddCustomInfo(contextPrefix+key, value)
}

func (e *Error) ContextInfo() map[string]string {
	res := make(map[string]string)
	for k, v := range e.CustomInfo {
		if after, ok := strings.CutPrefix(k, contextPrefix); ok {
			res[after] = v
		}
	}
	return res
}

func (e *Error) Code() int {
	return e.SubCode / 100
}

func (e *Error) IsFatal() bool  { return e.Level == LevelFatal }
func (e *Error) IsScript() bool { return e.Code() >= 200 && e.Code() < 300 }
func (e *Error) Valid() bool    { return e.Message != "" }
func (e *Error) Unwrap() error  { return e.cause }

func (e *Error) Error() string {
	if e.RootCause != "" {
		return fmt.Sprintf("lynx error %d: %s: %s", e.SubCode, e.Message, e.RootCause)
	}
	return fmt.Sprintf("lynx error %d: %s", e.SubCode, e.Message)
}

// Is matches another *Error by sub code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.SubCode == e.SubCode
}

func (e *Error) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"error_code": e.Code(),
		"sub_code":   e.SubCode,
		"origin":     e.Origin.String(),
	}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("url", e.TemplateURL)
	put("error", e.Message)
	put("level", string(e.Level))
	put("fix_suggestion", e.FixSuggestion)
	put("error_stack", e.CallStack)
	put("root_cause", e.RootCause)

	ctx := make(map[string]string)
	for k, v := range e.CustomInfo {
		if strings.HasPrefix(k, contextPrefix) {
			ctx[k] = v
		} else {
			out[k] = v
		}
	}
	if len(ctx) > 0 {
		out["context"] = ctx
	}
	return json.Marshal(out)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
