package account

// Pack is a purchasable bundle of credits.
type Pack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Credits int64  `json:"credits"`
	Bonus   int64  `json:"bonus"`
}

// Total is the number of credits the pack adds to the balance.
func (p Pack) Total() int64 {
	return p.Credits + p.Bonus
}

var packs = []Pack{
	{ID: "vandor", Name: "Vándor", Credits: 2000},
	{ID: "lovag", Name: "Lovag", Credits: 5000, Bonus: 500},
	{ID: "uralkodo", Name: "Uralkodó", Credits: 10000, Bonus: 2000},
}

// Packs lists the offered credit packs.
func Packs() []Pack {
	return append([]Pack(nil), packs...)
}

// LookupPack finds a pack by id.
func LookupPack(id string) (Pack, bool) {
	for _, p := range packs {
		if p.ID == id {
			return p, true
		}
	}
	return Pack{}, false
}
