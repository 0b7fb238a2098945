package admin

import "github.com/siegecorps/siegebot/internal/models"

// DefaultRecords returns the built-in Siege Corps roster
func DefaultRecords() []models.AdminRecord {
	return []models.AdminRecord{
		{Name: "BlindToLies", Title: "Tech Nerd Meme Lord", Variations: []string{"blind", "blindtolies", "lies"}},
		{Name: "Saloon", Title: "Horned Snow Owl Bodybuilder", Variations: []string{"saloon"}},
		{Name: "white_monster", Title: "Sausage the Space Marine", Variations: []string{"sausage", "white_monster", "whitemonster", "monster"}},
		{Name: "French_Demon", Title: "Napoleon Bonaparte Reincarnation", Variations: []string{"french", "demon", "napoleon", "frenchdemon"}},
		{Name: "Nico_Comms", Title: "Norwegian Forest Cat Communications Master", Variations: []string{"nico", "comms", "nicocomms"}},
		{Name: "DieselJack", Title: "Siege Corps Leader with Gas Mask", Variations: []string{"diesel", "jack", "dieseljack"}},
		{Name: "Tao", Title: "Loremaster Wizard Cat Lover", Variations: []string{"tao", "wizard", "loremaster"}},
		{Name: "Makaili", Title: "Dark Knight Matrix Controller", Variations: []string{"makaili", "matrix"}},
		{Name: "Don", Title: "Skeleton Green Beret Chain Smoker", Variations: []string{"don", "skeleton"}},
		{Name: "Techpriest", Title: "Creator of Siege and Shall Androids", Variations: []string{"techpriest", "priest", "creator"}},
		{Name: "Charlie", Title: "Feisty Female Army Raccoon", Variations: []string{"charlie", "raccoon"}},
		{Name: "Seraphim_Actual", Title: "Silent Spy Rarely Seen", Variations: []string{"seraphim", "actual", "spy"}},
	}
}
