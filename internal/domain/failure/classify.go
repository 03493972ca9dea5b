package failure

import (
	"errors"
	"strings"
)

// Category is the user-facing failure bucket.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryOverloaded
	CategoryInvalidAPIKey
	CategoryVideoProcessing
)

func (c Category) String() string {
	switch c {
	case CategoryOverloaded:
		return "overloaded"
	case CategoryInvalidAPIKey:
		return "invalid_api_key"
	case CategoryVideoProcessing:
		return "video_processing_failure"
	default:
		return "generic"
	}
}

const (
	msgOverloaded      = "The AI servers are busy right now. Please try again in a few minutes."
	msgInvalidAPIKey   = "The API key is not valid. Please check the key and try again."
	msgVideoProcessing = "Video processing failed. Please make sure the file is valid and try again."
	msgUnknown         = "An unknown error occurred. Please try again."
	msgCanceled        = "The recap was canceled."
)

// Classification is the outcome shown to the user for a failed run.
type Classification struct {
	Category Category
	Message  string
}

// Classify maps err onto one of the four user-facing categories. Only the
// Kind carried by the error chain is inspected.
func Classify(err error) Classification {
	switch KindOf(err) {
	case KindOverloaded:
		return Classification{Category: CategoryOverloaded, Message: msgOverloaded}
	case KindInvalidAPIKey:
		return Classification{Category: CategoryInvalidAPIKey, Message: msgInvalidAPIKey}
	case KindEngineLoad, KindTranscode:
		return Classification{Category: CategoryVideoProcessing, Message: msgVideoProcessing}
	case KindCanceled:
		return Classification{Category: CategoryGeneric, Message: msgCanceled}
	}
	return Classification{Category: CategoryGeneric, Message: genericMessage(err)}
}

func genericMessage(err error) string {
	if err == nil {
		return msgUnknown
	}
	var fe *Error
	if errors.As(err, &fe) && strings.TrimSpace(fe.Message) != "" {
		return fe.Message
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return msgUnknown
}
