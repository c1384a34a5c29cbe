package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/memory-journal/internal/model"
	"github.com/chirino/memory-journal/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		m := &memorySteps{s: s}
		ctx.Step(`^"([^"]*)" has a memory named "([^"]*)" at "([^"]*)"$`, m.hasMemory)
		ctx.Step(`^"([^"]*)" has a memory named "([^"]*)" at "([^"]*)" stored as \${([^}]*)}$`, m.hasMemoryStoredAs)
		ctx.Step(`^"([^"]*)" should have (\d+) memor(?:y|ies)$`, m.shouldHaveMemories)
	})
}

type memorySteps struct {
	s *cucumber.TestScenario
}

func (m *memorySteps) userID(name string) (uint, error) {
	m.s.Suite.Mu.Lock()
	defer m.s.Suite.Mu.Unlock()
	u := m.s.Users[name]
	if u == nil || u.UserID == 0 {
		return 0, fmt.Errorf("user %q has not logged in", name)
	}
	return u.UserID, nil
}

func (m *memorySteps) create(owner, name, location string) (*model.Memory, error) {
	ownerID, err := m.userID(owner)
	if err != nil {
		return nil, err
	}
	memory := &model.Memory{Name: name, Location: location}
	if err := server(m.s).Store.CreateMemory(context.Background(), ownerID, memory); err != nil {
		return nil, fmt.Errorf("create memory %q for %s: %w", name, owner, err)
	}
	return memory, nil
}

func (m *memorySteps) hasMemory(owner, name, location string) error {
	_, err := m.create(owner, name, location)
	return err
}

func (m *memorySteps) hasMemoryStoredAs(owner, name, location, variable string) error {
	memory, err := m.create(owner, name, location)
	if err != nil {
		return err
	}
	m.s.Variables[variable] = map[string]interface{}{"id": int(memory.ID)}
	return nil
}

func (m *memorySteps) shouldHaveMemories(owner string, expected int) error {
	ownerID, err := m.userID(owner)
	if err != nil {
		return err
	}
	memories, err := server(m.s).Store.ListMemories(context.Background(), ownerID)
	if err != nil {
		return err
	}
	if len(memories) != expected {
		return fmt.Errorf("expected %d memories for %s, got %d", expected, owner, len(memories))
	}
	return nil
}
