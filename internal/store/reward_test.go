package store

import "testing"

func TestRewardCRUD(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	rewards := NewRewardStore(db)

	reward, err := rewards.Create(family.ID, "Movie night", "Pick the film", 10, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if reward.StarCost != 10 || !reward.Active {
		t.Errorf("reward = %+v", reward)
	}

	updated, err := rewards.Update(family.ID, reward.ID, "Movie night", "Pick the film", 15, false)
	if err != nil {
		t.Fatalf("update reward: %v", err)
	}
	if updated.StarCost != 15 || updated.Active {
		t.Errorf("updated = %+v", updated)
	}

	if err := rewards.Delete(family.ID, reward.ID); err != nil {
		t.Fatalf("delete reward: %v", err)
	}
	got, err := rewards.GetByID(family.ID, reward.ID)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if got != nil {
		t.Error("deleted reward should be gone")
	}
}

func TestRewardListOrdersActiveFirst(t *testing.T) {
	db := testDB(t)
	family, _ := NewFamilyStore(db).Create("Test")
	rewards := NewRewardStore(db)

	rewards.Create(family.ID, "Aquarium trip", "", 50, false)
	rewards.Create(family.ID, "Zoo trip", "", 40, true)

	list, err := rewards.List(family.ID)
	if err != nil {
		t.Fatalf("list rewards: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if !list[0].Active || list[0].Title != "Zoo trip" {
		t.Errorf("active reward should sort first, got %+v", list[0])
	}
}

func TestRewardGetIsFamilyScoped(t *testing.T) {
	db := testDB(t)
	families := NewFamilyStore(db)
	ours, _ := families.Create("Ours")
	theirs, _ := families.Create("Theirs")
	rewards := NewRewardStore(db)

	reward, _ := rewards.Create(ours.ID, "Movie night", "", 10, true)

	got, err := rewards.GetByID(theirs.ID, reward.ID)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if got != nil {
		t.Error("reward leaked across families")
	}
}
