package messaging

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/taskwire/taskwire/internal/sharding"
)

// Topic names are logical channels shared by both transport bindings.
const (
	TopicTaskEvents = "task-events"
	TopicReminders  = "reminders"
)

const (
	tasksStream     = "TASKS"
	remindersStream = "REMINDERS"

	taskSubjectPrefix     = "app.task"
	reminderSubjectPrefix = "app.reminder"
)

var ErrUnknownTopic = errors.New("unknown topic")

// PublishSubject maps a topic plus the owning identity onto a sharded
// NATS subject.
func PublishSubject(topic, ownerID string) (string, error) {
	prefix, err := subjectPrefix(topic)
	if err != nil {
		return "", err
	}
	return sharding.Subject(prefix, ownerID), nil
}

// SubscribeSubject returns the wildcard covering every shard of a topic.
func SubscribeSubject(topic string) (string, error) {
	prefix, err := subjectPrefix(topic)
	if err != nil {
		return "", err
	}
	return prefix + ".>", nil
}

func subjectPrefix(topic string) (string, error) {
	switch topic {
	case TopicTaskEvents:
		return taskSubjectPrefix, nil
	case TopicReminders:
		return reminderSubjectPrefix, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
}

// EnsureStreams creates (or validates) the two streams backing the topics:
// - app.task.>
// - app.reminder.>
func EnsureStreams(js nats.JetStreamContext) error {
	for _, stream := range []nats.StreamConfig{
		{
			Name:      tasksStream,
			Subjects:  []string{taskSubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			Replicas:  1,
		},
		{
			Name:      remindersStream,
			Subjects:  []string{reminderSubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			Replicas:  1,
		},
	} {
		if _, err := js.StreamInfo(stream.Name); err != nil {
			if errors.Is(err, nats.ErrStreamNotFound) {
				cfg := stream
				if _, addErr := js.AddStream(&cfg); addErr != nil {
					return addErr
				}
				continue
			}
			return err
		}
	}
	return nil
}
