package state

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Todo is one entry of the /todos array.
type Todo struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at"`
}

// Todos decodes the /todos array.
func (s *State) Todos() ([]Todo, error) {
	v, ok := s.Get("/" + KeyTodos)
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode todos: %w", err)
	}
	var todos []Todo
	if err := json.Unmarshal(data, &todos); err != nil {
		return nil, fmt.Errorf("decode todos: %w", err)
	}
	return todos, nil
}

// TodoIndex returns the array index of the todo with id.
func (s *State) TodoIndex(id int64) (int, bool) {
	todos, err := s.Todos()
	if err != nil {
		return 0, false
	}
	for i, todo := range todos {
		if todo.ID == id {
			return i, true
		}
	}
	return 0, false
}

// TodoPath returns the patch path of a todo field at index.
func TodoPath(index int, field string) string {
	return "/" + KeyTodos + "/" + strconv.Itoa(index) + "/" + field
}
