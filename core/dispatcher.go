package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DispatchRefresh emits one refresh signal per name, in set order. Without a
// publisher nothing is emitted and the result is empty, signalling that no
// refresh was triggered. Publisher failures do not stop the remaining names;
// the returned slice holds the names that were published.
func DispatchRefresh(
	ctx context.Context,
	names *ServiceNameSet,
	origin string,
	contextID string,
	publisher RefreshPublisher,
) ([]string, error) {
	if publisher == nil || names.Len() == 0 {
		return []string{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	published := make([]string, 0, names.Len())
	var publishErr error
	for _, name := range names.Values() {
		signal := NewRefreshSignal(origin, contextID, name)
		if err := publisher.PublishRefresh(ctx, signal); err != nil {
			publishErr = errors.Join(publishErr, publishError(err, name))
			continue
		}
		published = append(published, name)
	}
	return published, publishErr
}

func NewRefreshSignal(origin string, contextID string, destination string) RefreshSignal {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = DefaultOrigin
	}
	return RefreshSignal{
		ID:          uuid.NewString(),
		Origin:      origin,
		ContextID:   strings.TrimSpace(contextID),
		Destination: destination,
		OccurredAt:  time.Now().UTC(),
	}
}
