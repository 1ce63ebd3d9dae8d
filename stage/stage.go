// Package stage holds the static prize stage tables.
package stage

import (
	"errors"
	"fmt"
	"strings"

	"lottery-server-go/models"
)

// Constraint describes how the winners of one draw relate to each other.
type Constraint int

const (
	// Independent draws WinnersPerDraw distinct winners from the whole grade.
	Independent Constraint = iota
	// DistinctClassPairs draws two winners who never share a class.
	DistinctClassPairs
	// PerClass draws one winner from every class of the grade.
	PerClass
)

func (c Constraint) String() string {
	switch c {
	case Independent:
		return "independent"
	case DistinctClassPairs:
		return "distinctClassPairs"
	case PerClass:
		return "perClass"
	default:
		return fmt.Sprintf("Constraint(%d)", int(c))
	}
}

func (c Constraint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

const (
	Third       models.StageID = 1
	Second      models.StageID = 2
	Grand       models.StageID = 3
	Anniversary models.StageID = 4
	Bonus       models.StageID = 5
)

// Descriptor is one row of a stage table.
type Descriptor struct {
	ID             models.StageID `json:"id"`
	Name           string         `json:"name"`
	WinnersPerDraw int            `json:"winnersPerDraw"`
	Constraint     Constraint     `json:"constraint"`
	Label          string         `json:"label"`
	Quota          string         `json:"quota"`
}

// Required returns how many eligible identifiers one draw of this stage needs
// from a single scope: the whole grade, or one class for per-class stages.
func (d Descriptor) Required() int {
	switch d.Constraint {
	case DistinctClassPairs:
		return 2
	case PerClass:
		return 1
	default:
		if d.WinnersPerDraw < 1 {
			return 1
		}
		return d.WinnersPerDraw
	}
}

var ErrUnknownPolicy = errors.New("unknown stage set")

var (
	secondPrize = Descriptor{
		ID:             Second,
		Name:           "二獎",
		WinnersPerDraw: 2,
		Constraint:     DistinctClassPairs,
		Label:          "二獎：麥當勞 $20×3 現金券",
		Quota:          "每級 2 份，全校共 12 份",
	}
	grandPrize = Descriptor{
		ID:             Grand,
		Name:           "大獎",
		WinnersPerDraw: 1,
		Constraint:     Independent,
		Label:          "大獎：馬拉松 $100×3 現金券",
		Quota:          "每級 1 份，全校共 6 份",
	}
	thirdPrize = Descriptor{
		ID:             Third,
		Name:           "三獎",
		WinnersPerDraw: 1,
		Constraint:     PerClass,
		Label:          "三獎：文具禮券",
		Quota:          "每班 1 份，每級 4 份",
	}
	anniversaryPrize = Descriptor{
		ID:             Anniversary,
		Name:           "週年紀念獎",
		WinnersPerDraw: 1,
		Constraint:     Independent,
		Label:          "週年紀念獎：校慶紀念品",
		Quota:          "每級 1 份",
	}
	bonusPrize = Descriptor{
		ID:             Bonus,
		Name:           "特別獎",
		WinnersPerDraw: 1,
		Constraint:     Independent,
		Label:          "特別獎：神秘禮物",
		Quota:          "每級 1 份",
	}
)

// Policy is an ordered, read-only stage table.
type Policy struct {
	name   string
	def    models.StageID
	stages []Descriptor
}

// Classic is the default two stage table: second and grand prizes.
func Classic() Policy {
	return Policy{name: "classic", def: Second, stages: []Descriptor{secondPrize, grandPrize}}
}

// Extended adds per-class and special prizes to the classic table.
func Extended() Policy {
	return Policy{
		name: "extended",
		def:  Grand,
		stages: []Descriptor{
			grandPrize,
			secondPrize,
			thirdPrize,
			anniversaryPrize,
			bonusPrize,
		},
	}
}

// ByName returns the named stage table.
func ByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "classic":
		return Classic(), nil
	case "extended":
		return Extended(), nil
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

func (p Policy) Name() string { return p.name }

// Default is the stage selected when a session starts.
func (p Policy) Default() models.StageID { return p.def }

// Stages returns a copy of the table.
func (p Policy) Stages() []Descriptor {
	return append([]Descriptor(nil), p.stages...)
}

func (p Policy) Lookup(id models.StageID) (Descriptor, bool) {
	for _, d := range p.stages {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// NameOf returns the short display name of a stage, also for stages that are
// not part of this table (e.g. restored from another configuration).
func (p Policy) NameOf(id models.StageID) string {
	if d, ok := p.Lookup(id); ok {
		return d.Name
	}
	for _, d := range Extended().stages {
		if d.ID == id {
			return d.Name
		}
	}
	return fmt.Sprintf("stage %d", int(id))
}
