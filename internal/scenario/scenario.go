// Package scenario holds the fixed roster, map and answer key of the mystery.
// The content is read-only domain data; nothing in the game mutates it.
package scenario

import "slices"

const (
	// Investigation1Flag marks a player who has spent the first investigation's quota.
	Investigation1Flag = 901
	// Investigation2Flag marks a player who has spent the second investigation's quota.
	Investigation2Flag = 902

	// Other is the vote sentinel for "none of the listed".
	Other = 99

	MaxPlayers = 4
)

type Character struct {
	Id       int    `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Playable bool   `json:"playable"`
}

type Item struct {
	Id    int    `json:"id"`
	Name  string `json:"name"`
	Stage int    `json:"stage"`
}

type Location struct {
	Id         int    `json:"id"`
	Name       string `json:"name"`
	Searchable bool   `json:"searchable"`
	Items      []Item `json:"items"`
}

// Answer is the four-part accusation a vote or a consensus is made of.
type Answer struct {
	Who    int `json:"who"`
	Where  int `json:"where"`
	What   int `json:"what"`
	ToWhom int `json:"to_whom"`
}

var Characters = []Character{
	{Id: 1, Name: "Eleanor Vance", Color: "#b45309", Playable: true},
	{Id: 2, Name: "Doctor Halloway", Color: "#1d4ed8", Playable: true},
	{Id: 3, Name: "Mr. Crane", Color: "#15803d", Playable: true},
	{Id: 4, Name: "Sister Agnes", Color: "#7e22ce", Playable: true},
	{Id: 5, Name: "Lord Ashby", Color: "#6b7280", Playable: false},
}

var Locations = []Location{
	{Id: 1, Name: "Study", Searchable: true, Items: []Item{
		{Id: 101, Name: "Torn letter", Stage: 1},
		{Id: 102, Name: "Ink-stained blotter", Stage: 1},
		{Id: 103, Name: "Silver letter opener", Stage: 1},
		{Id: 104, Name: "Hidden ledger", Stage: 2},
	}},
	{Id: 2, Name: "Kitchen", Searchable: true, Items: []Item{
		{Id: 201, Name: "Empty vial", Stage: 1},
		{Id: 202, Name: "Scullery key", Stage: 1},
		{Id: 203, Name: "Burnt recipe card", Stage: 2},
	}},
	{Id: 3, Name: "Garden", Searchable: true, Items: []Item{
		{Id: 301, Name: "Muddy footprints", Stage: 1},
		{Id: 302, Name: "Broken lantern", Stage: 1},
		{Id: 303, Name: "Buried glove", Stage: 2},
		{Id: 304, Name: "Trampled roses", Stage: 2},
	}},
	{Id: 4, Name: "Bedroom", Searchable: true, Items: []Item{
		{Id: 401, Name: "Pocket watch", Stage: 1},
		{Id: 402, Name: "Sleeping draught", Stage: 1},
		{Id: 403, Name: "Unsent telegram", Stage: 2},
	}},
	{Id: 5, Name: "Great Hall", Searchable: false, Items: []Item{
		{Id: 501, Name: "Guest list", Stage: 1},
	}},
	{Id: 6, Name: "Chapel", Searchable: false, Items: []Item{
		{Id: 601, Name: "Prayer book", Stage: 2},
	}},
}

// CorrectAnswer is the canonical solution every consensus is compared against.
var CorrectAnswer = Answer{Who: 3, Where: 1, What: 103, ToWhom: 5}

func LocationById(id int) (Location, bool) {
	for _, loc := range Locations {
		if loc.Id == id {
			return loc, true
		}
	}
	return Location{}, false
}

func CharacterById(id int) (Character, bool) {
	for _, c := range Characters {
		if c.Id == id {
			return c, true
		}
	}
	return Character{}, false
}

func ItemById(id int) (Item, bool) {
	for _, loc := range Locations {
		for _, item := range loc.Items {
			if item.Id == id {
				return item, true
			}
		}
	}
	return Item{}, false
}

// StageItems returns the items of loc that belong to stage, sorted by ascending id.
func StageItems(loc Location, stage int) []Item {
	var items []Item
	for _, item := range loc.Items {
		if item.Stage == stage {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b Item) int { return a.Id - b.Id })
	return items
}

// IsFlag reports whether id is one of the reserved completion flags.
func IsFlag(id int) bool {
	return id == Investigation1Flag || id == Investigation2Flag
}
