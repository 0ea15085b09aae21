package dispatcher

import "strings"

// CallbackKind is the closed set of prefix-encoded callback payload kinds
// the router recognizes.
type CallbackKind string

const (
	CallbackCancel      CallbackKind = "cancel"
	CallbackDrive       CallbackKind = "drive"
	CallbackFiles       CallbackKind = "files"
	CallbackManagerBack CallbackKind = "manager_back"
	CallbackUnknown     CallbackKind = "unknown"
)

// ParsedCallback is the decoded form of a prefix-encoded callback payload
// such as "cancel_<taskId>" or "files_<page>".
type ParsedCallback struct {
	Kind CallbackKind
	Arg  string
}

// ParseCallback decodes a raw callback payload into its kind and argument.
func ParseCallback(payload string) ParsedCallback {
	if payload == "manager_back" {
		return ParsedCallback{Kind: CallbackManagerBack}
	}
	for _, prefix := range []CallbackKind{CallbackCancel, CallbackDrive, CallbackFiles} {
		if rest, ok := strings.CutPrefix(payload, string(prefix)+"_"); ok {
			return ParsedCallback{Kind: prefix, Arg: rest}
		}
	}
	return ParsedCallback{Kind: CallbackUnknown, Arg: payload}
}
