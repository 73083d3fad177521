package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestEnqueueFill(t *testing.T) {
	client := &recordingClient{}
	err := EnqueueFill(context.Background(), client, FillPayload{
		DocumentID: "doc-1",
		EmployeeID: "emp-9",
		Form:       "direct_deposit",
		Values:     map[string]any{"employee_name": "John Smith", "bank1_checking": true},
	})
	require.NoError(t, err)
	require.Len(t, client.tasks, 1)
	assert.Equal(t, FillDocumentTask, client.tasks[0].Type())

	var got FillPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &got))
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, "John Smith", got.Values["employee_name"])
	assert.Equal(t, true, got.Values["bank1_checking"])

	require.Len(t, client.opts[0], 1)
	assert.Equal(t, asynq.MaxRetryOpt, client.opts[0][0].Type())
	assert.Equal(t, 5, client.opts[0][0].Value())
}

func TestEnqueueEmailError(t *testing.T) {
	client := &recordingClient{err: errors.New("redis down")}
	err := EnqueueEmail(context.Background(), client, EmailPayload{OutboxID: "m-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue email:send task")
}

func TestEnqueueEmailIsNotRetriedByQueue(t *testing.T) {
	client := &recordingClient{}
	require.NoError(t, EnqueueEmail(context.Background(), client, EmailPayload{OutboxID: "m-1"}))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, SendEmailTask, client.tasks[0].Type())

	require.Len(t, client.opts[0], 1)
	assert.Equal(t, asynq.MaxRetryOpt, client.opts[0][0].Type())
	assert.Equal(t, 0, client.opts[0][0].Value())
}
