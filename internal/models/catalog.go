package models

type Room struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type Equipment struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Package is a sellable bundle. Booking it reserves every listed equipment unit.
type Package struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Price        int64    `yaml:"price" json:"price"`
	EquipmentIDs []string `yaml:"equipment_ids" json:"equipment_ids"`
}

// WorkflowRule lists the tasks appended to a booking's checklist when it enters Status.
type WorkflowRule struct {
	Status Status   `yaml:"status" json:"status"`
	Tasks  []string `yaml:"tasks" json:"tasks"`
}
