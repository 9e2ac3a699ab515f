package validator

import (
	"strings"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

const maxContentLength = 8192

func ValidateChannel(name, chType string) ValidationErrors {
	errs := make(ValidationErrors)

	name = strings.TrimSpace(name)
	if name == "" {
		errs.Add("name", "Channel name is required")
	} else if utf8.RuneCountInString(name) < 2 {
		errs.Add("name", "Channel name must be at least 2 characters")
	} else if utf8.RuneCountInString(name) > 100 {
		errs.Add("name", "Channel name is too long")
	}

	if chType != "" && chType != "public" && chType != "private" {
		errs.Add("type", "Channel type must be public or private")
	}

	return errs
}

func ValidateMessageContent(content string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(content) == "" {
		errs.Add("content", "Message content is required")
	} else if utf8.RuneCountInString(content) > maxContentLength {
		errs.Add("content", "Message content is too long")
	}

	return errs
}

func ValidateEmoji(emoji string) ValidationErrors {
	errs := make(ValidationErrors)

	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		errs.Add("emoji", "Emoji is required")
	} else if utf8.RuneCountInString(emoji) > 32 {
		errs.Add("emoji", "Emoji is too long")
	}

	return errs
}

func ValidateAttachment(fileURL, fileType string, fileSize int64) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(fileURL) == "" {
		errs.Add("file_url", "File URL is required")
	}
	if strings.TrimSpace(fileType) == "" {
		errs.Add("file_type", "File type is required")
	}
	if fileSize <= 0 {
		errs.Add("file_size", "File size must be positive")
	}

	return errs
}
