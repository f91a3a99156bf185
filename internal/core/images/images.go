// Package images holds pure helpers for image references and pull output.
package images

import (
	"encoding/json"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"
)

// DefaultTag is appended to references without a tag or digest.
const DefaultTag = "latest"

// WithDefaultTag returns ref with ":latest" appended when it carries no tag
// or digest. A registry port ("host:5000/app") is not a tag.
func WithDefaultTag(ref string) string {
	if ref == "" {
		return ref
	}
	name := ref
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		name = ref[i+1:]
	}
	if strings.ContainsAny(name, ":@") {
		return ref
	}
	return ref + ":" + DefaultTag
}

// FormatPullLine renders one line of the daemon's pull stream as
// "status : progress" or "status". Lines that are not JSON messages are
// returned unchanged.
func FormatPullLine(line []byte) string {
	var msg jsonmessage.JSONMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return string(line)
	}
	if msg.Error != nil {
		return msg.Error.Message
	}
	if msg.ErrorMessage != "" {
		return msg.ErrorMessage
	}

	status := msg.Status
	if msg.ID != "" {
		status = msg.ID + ": " + status
	}
	if msg.Progress != nil {
		if progress := msg.Progress.String(); progress != "" {
			return status + " : " + progress
		}
	}
	if msg.ProgressMessage != "" {
		return status + " : " + msg.ProgressMessage
	}
	return status
}

// PullError returns the error carried by a pull stream line, if any.
func PullError(line []byte) error {
	var msg jsonmessage.JSONMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil
	}
	if msg.Error != nil {
		return msg.Error
	}
	return nil
}
