package pubsub

import "testing"

func TestResourceNames(t *testing.T) {
	t.Parallel()

	if got := fullTopicName("proj", "scan-items"); got != "projects/proj/topics/scan-items" {
		t.Fatalf("fullTopicName() = %q", got)
	}
	if got := fullSubscriptionName("proj", "scan-items-sub"); got != "projects/proj/subscriptions/scan-items-sub" {
		t.Fatalf("fullSubscriptionName() = %q", got)
	}
}
