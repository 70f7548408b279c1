package store

import (
	"testing"

	"github.com/dje115/choreblimey-sub001/internal/model"
)

func TestTaskCreateAndUpdate(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	tasks := NewTaskStore(db)

	task, err := tasks.Create(family.ID, "Dishes", "After dinner", 150, model.RecurDaily, false)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.BaseRewardPence != 150 || task.Recurrence != model.RecurDaily || !task.Active {
		t.Errorf("task = %+v", task)
	}

	updated, err := tasks.Update(family.ID, task.ID, "Dishes", "After every meal", 200, model.RecurWeekly, true)
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.BaseRewardPence != 200 || updated.Recurrence != model.RecurWeekly || !updated.ProofRequired {
		t.Errorf("updated = %+v", updated)
	}
}

func TestTaskSetActive(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	tasks := NewTaskStore(db)

	task, _ := tasks.Create(family.ID, "Dishes", "", 100, model.RecurDaily, false)

	if err := tasks.SetActive(family.ID, task.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	got, _ := tasks.GetByID(family.ID, task.ID)
	if got.Active {
		t.Error("task should be inactive")
	}

	if err := tasks.SetActive(family.ID, task.ID, true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	got, _ = tasks.GetByID(family.ID, task.ID)
	if !got.Active {
		t.Error("task should be active again")
	}
}

func TestTaskGetIsFamilyScoped(t *testing.T) {
	db := testDB(t)
	families := NewFamilyStore(db)
	ours, _ := families.Create("Ours")
	theirs, _ := families.Create("Theirs")
	tasks := NewTaskStore(db)

	task, _ := tasks.Create(ours.ID, "Dishes", "", 100, model.RecurDaily, false)

	got, err := tasks.GetByID(theirs.ID, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got != nil {
		t.Error("task leaked across families")
	}
}

func TestAssignmentPinnedChild(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	tasks := NewTaskStore(db)
	members := NewMemberStore(db)

	alice, _ := members.Create(family.ID, "Alice", model.RoleChild, "#fff", "🦊")
	task, _ := tasks.Create(family.ID, "Dishes", "", 100, model.RecurDaily, false)

	a, err := tasks.CreateAssignment(family.ID, task.ID, &alice.ID, false)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if a.ChildID == nil || *a.ChildID != alice.ID {
		t.Errorf("pinned child not persisted: %+v", a)
	}
	if a.BiddingEnabled {
		t.Error("bidding should be off")
	}
}

func TestAssignmentOpenWithBidding(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	tasks := NewTaskStore(db)

	task, _ := tasks.Create(family.ID, "Mow the lawn", "", 300, model.RecurWeekly, false)

	a, err := tasks.CreateAssignment(family.ID, task.ID, nil, true)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if a.ChildID != nil {
		t.Errorf("open assignment should have no child, got %d", *a.ChildID)
	}
	if !a.BiddingEnabled {
		t.Error("bidding should be on")
	}

	list, err := tasks.ListAssignments(family.ID)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Errorf("assignments = %+v", list)
	}
}
