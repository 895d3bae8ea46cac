package service

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

func (r *recorder) svc(id string, deps []string, startErr error) *Func {
	return &Func{
		Name:      id,
		DependsOn: deps,
		OnStart: func(context.Context) error {
			r.events = append(r.events, "start:"+id)
			return startErr
		},
		OnStop: func(context.Context) error {
			r.events = append(r.events, "stop:"+id)
			return nil
		},
	}
}

func TestGroupStartsDependenciesFirst(t *testing.T) {
	r := &recorder{}
	var g Group
	require.NoError(t, g.Add(r.svc("watch", []string{"etcd"}, nil)))
	require.NoError(t, g.Add(r.svc("clock", nil, nil)))
	require.NoError(t, g.Add(r.svc("etcd", nil, nil)))
	assert.Equal(t, []string{"watch", "clock", "etcd"}, g.IDs())

	require.NoError(t, g.Start(context.Background()))
	require.NoError(t, g.Stop(context.Background()))

	assert.Equal(t, []string{
		"start:etcd", "start:watch", "start:clock",
		"stop:clock", "stop:watch", "stop:etcd",
	}, r.events)
}

func TestGroupRollsBackOnStartFailure(t *testing.T) {
	r := &recorder{}
	boom := errors.New("boom")
	var g Group
	require.NoError(t, g.Add(r.svc("a", nil, nil)))
	require.NoError(t, g.Add(r.svc("b", nil, boom)))
	require.NoError(t, g.Add(r.svc("c", nil, nil)))

	err := g.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, r.events)
}

func TestGroupRejectsBadGraphs(t *testing.T) {
	r := &recorder{}

	var dup Group
	require.NoError(t, dup.Add(r.svc("a", nil, nil)))
	assert.ErrorIs(t, dup.Add(r.svc("a", nil, nil)), errDuplicateService)
	assert.ErrorIs(t, dup.Add(nil), errNilService)

	var unknown Group
	require.NoError(t, unknown.Add(r.svc("a", []string{"ghost"}, nil)))
	assert.ErrorIs(t, unknown.Start(context.Background()), errUnknownRequire)

	var cycle Group
	require.NoError(t, cycle.Add(r.svc("a", []string{"b"}, nil)))
	require.NoError(t, cycle.Add(r.svc("b", []string{"a"}, nil)))
	assert.ErrorIs(t, cycle.Start(context.Background()), errDependencyCycle)
	assert.Empty(t, r.events)
}

func TestGroupStopJoinsErrors(t *testing.T) {
	var g Group
	require.NoError(t, g.Add(&Func{Name: "a", OnStop: func(context.Context) error { return errors.New("a failed") }}))
	require.NoError(t, g.Add(&Func{Name: "b", OnStop: func(context.Context) error { return errors.New("b failed") }}))
	require.NoError(t, g.Start(context.Background()))
	assert.ErrorIs(t, g.Start(context.Background()), errGroupStarted)

	err := g.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
	assert.NoError(t, g.Stop(context.Background()))
}
