package chore

import "github.com/dukerupert/chorechamp/internal/model"

// Move reassigns one chore during a rotation.
type Move struct {
	ChoreID int64
	From    int64
	To      int64
}

// PlanRotation moves every assigned, unlocked chore to the member after its
// current assignee in members, wrapping at the end. Members without chores
// still hold their position. An assignee missing from members moves to the
// first member.
func PlanRotation(members []int64, chores []model.Chore) []Move {
	if len(members) == 0 {
		return nil
	}

	index := make(map[int64]int, len(members))
	for i, id := range members {
		index[id] = i
	}

	var moves []Move
	for _, c := range chores {
		if c.IsLocked || c.AssignedTo == nil {
			continue
		}
		from := *c.AssignedTo
		i, ok := index[from]
		if !ok {
			i = len(members) - 1
		}
		to := members[(i+1)%len(members)]
		if to == from {
			continue
		}
		moves = append(moves, Move{ChoreID: c.ID, From: from, To: to})
	}
	return moves
}
