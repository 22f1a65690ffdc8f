package master

import (
	"context"

	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/spawner"
)

func (s *Server) handleRegisterSpawner(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	r := wire.NewReader(m.Payload)
	region, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	maxProcesses, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	executableCount, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	executables := make([]string, 0, executableCount)
	for i := 0; i < int(executableCount); i++ {
		executable, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		executables = append(executables, executable)
	}

	sp, err := s.Spawners.RegisterSpawner(p, spawner.Options{
		Region:       region,
		MaxProcesses: int(maxProcesses),
		Executables:  executables,
	})
	if err != nil {
		return nil, wrapError(err)
	}

	var w wire.Writer
	w.WriteUint32(sp.ID())
	return w.Bytes(), nil
}

func (s *Server) handleRequestSpawn(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	r := wire.NewReader(m.Payload)
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	maxPlayers, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	region, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	password, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	isPublic, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	properties, err := r.ReadStringMap()
	if err != nil {
		return nil, err
	}
	custom, err := r.ReadStringMap()
	if err != nil {
		return nil, err
	}

	task, err := s.Spawners.RequestSpawn(p, spawner.RoomOptions{
		Name:       name,
		MaxPlayers: int(maxPlayers),
		Region:     region,
		Password:   password,
		IsPublic:   isPublic,
		Properties: properties,
	}, custom)
	if err != nil {
		return nil, wrapError(err)
	}

	var w wire.Writer
	w.WriteString(task.ID())
	return w.Bytes(), nil
}

func (s *Server) handleProcessRegistered(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	taskID, err := wire.NewReader(m.Payload).ReadString()
	if err != nil {
		return nil, err
	}
	if _, err := s.Spawners.RegisterSpawnedProcess(p, taskID); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleCompleteSpawn(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	r := wire.NewReader(m.Payload)
	taskID, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	finalization, err := r.ReadStringMap()
	if err != nil {
		return nil, err
	}
	if err := s.Spawners.CompleteSpawnProcess(p, taskID, finalization); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleAbortSpawn(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	taskID, err := wire.NewReader(m.Payload).ReadString()
	if err != nil {
		return nil, err
	}
	if err := s.Spawners.AbortSpawn(p, taskID); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleKillProcess(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	if _, err := s.administrator(p); err != nil {
		return nil, err
	}
	taskID, err := wire.NewReader(m.Payload).ReadString()
	if err != nil {
		return nil, err
	}
	if err := s.Spawners.KillProcess(taskID); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}
