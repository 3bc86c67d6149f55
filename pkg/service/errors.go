package service

import (
	"github.com/harrisonrobin/taskcal/pkg/auth"
	"github.com/harrisonrobin/taskcal/pkg/google"
	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/harrisonrobin/taskcal/pkg/store"
)

// Caller-facing error taxonomy. Match with errors.Is.
var (
	ErrNotConnected      = auth.ErrNotConnected
	ErrAuthRefreshFailed = auth.ErrAuthRefreshFailed
	ErrRemoteFailure     = google.ErrRemoteFailure
	ErrEventNotFound     = google.ErrEventNotFound
	ErrTaskNotFound      = store.ErrTaskNotFound
	ErrInvalidInput      = model.ErrInvalidInput
)
