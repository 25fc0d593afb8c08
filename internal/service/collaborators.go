// Package service implements the approval workflow: submission with tree
// expansion, review transitions with pipeline dispatch, and the completion
// gate.
package service

import (
	"context"

	"github.com/vre-charite/service-approval/internal/metadata"
	"github.com/vre-charite/service-approval/internal/notifications"
	"github.com/vre-charite/service-approval/internal/pipeline"
)

// TreeExpander flattens a requested selection into ordered entity
// descriptors. Implemented by metadata.TreeBuilder.
type TreeExpander interface {
	Expand(ctx context.Context, topLevelGeids []string) ([]metadata.EntityDescriptor, error)
}

// Dispatcher triggers the external copy pipeline. Implemented by
// pipeline.Client.
type Dispatcher interface {
	SubmitCopy(ctx context.Context, in pipeline.SubmitCopyInput) ([]string, error)
}

// Notifier emits workflow emails. Implemented by
// notifications.EmailNotifier. Delivery is fire and forget; implementations
// log failures instead of returning them.
type Notifier interface {
	NotifySubmitted(ctx context.Context, notice notifications.SubmittedNotice)
	NotifyCompleted(ctx context.Context, notice notifications.CompletedNotice)
}

// noticeTimeFormat is the timestamp layout used in notification templates.
const noticeTimeFormat = "2006-01-02 15:04:05"
