package schedule

import "studiodesk/internal/models"

// Catalog is a read-only view of the studio's rooms, equipment and packages.
type Catalog struct {
	rooms     map[string]models.Room
	equipment map[string]models.Equipment
	packages  map[string]models.Package
}

func NewCatalog(rooms []models.Room, equipment []models.Equipment, packages []models.Package) *Catalog {
	c := &Catalog{
		rooms:     make(map[string]models.Room, len(rooms)),
		equipment: make(map[string]models.Equipment, len(equipment)),
		packages:  make(map[string]models.Package, len(packages)),
	}
	for _, r := range rooms {
		c.rooms[r.ID] = r
	}
	for _, e := range equipment {
		c.equipment[e.ID] = e
	}
	for _, p := range packages {
		c.packages[p.ID] = p
	}
	return c
}

// EquipmentFor returns the equipment ids required by a package, or nil when
// the package is unknown.
func (c *Catalog) EquipmentFor(packageID string) []string {
	if c == nil {
		return nil
	}
	return c.packages[packageID].EquipmentIDs
}

// Package looks up a package by id.
func (c *Catalog) Package(id string) (models.Package, bool) {
	if c == nil {
		return models.Package{}, false
	}
	p, ok := c.packages[id]
	return p, ok
}

// HasRoom reports whether the room id is in the catalog.
func (c *Catalog) HasRoom(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.rooms[id]
	return ok
}

// RoomName falls back to the id when the room is not catalogued.
func (c *Catalog) RoomName(id string) string {
	if c != nil {
		if r, ok := c.rooms[id]; ok && r.Name != "" {
			return r.Name
		}
	}
	return id
}

// EquipmentName falls back to the id when the unit is not catalogued.
func (c *Catalog) EquipmentName(id string) string {
	if c != nil {
		if e, ok := c.equipment[id]; ok && e.Name != "" {
			return e.Name
		}
	}
	return id
}
