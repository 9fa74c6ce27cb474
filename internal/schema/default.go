package schema

// Default returns the built-in landuse schema used when no schema file is
// configured.
func Default() *Registry {
	return MustNew([]Category{
		{Key: "drinking", Tags: []TagSpec{
			{Key: "amenity", Values: Values("bar", "biergarten", "pub")},
		}},
		{Key: "beverage", Tags: []TagSpec{
			{Key: "amenity", Values: Values("cafe")},
		}},
		{Key: "eating", Tags: []TagSpec{
			{Key: "amenity", Values: Values("fast_food", "food_court", "ice_cream", "restaurant")},
		}},
		{Key: "children", Tags: []TagSpec{
			{Key: "amenity", Values: Values("kindergarten", "childcare")},
			{Key: "leisure", Values: Values("playground")},
		}},
		{Key: "education", Tags: []TagSpec{
			{Key: "amenity", Values: Values(
				"school", "college", "language_school", "research_institute",
				"training", "university", "music_school",
			)},
		}},
		{Key: "transport", Tags: []TagSpec{
			{Key: "railway", Values: Values("subway", "station")},
			{Key: "highway", Values: Values("bus_stop")},
		}},
		{Key: "grocery", Tags: []TagSpec{
			{Key: "shop", Values: Values(
				"alcohol", "bakery", "beverages", "brewing_supplies", "butcher",
				"cheese", "chocolate", "coffee", "confectionery", "convenience",
				"deli", "dairy", "farm", "frozen_food", "general", "greengrocer",
				"health_food", "ice_cream", "pasta", "pastry", "seafood", "spices",
				"supermarket", "tea", "wine",
			)},
		}},
		{Key: "retail", Tags: []TagSpec{
			{Key: "shop", Values: Values(
				// general stores and clothing
				"department_store", "florist", "kiosk", "mall", "wholesale",
				"baby_goods", "bag", "boutique", "clothes", "fabric",
				"fashion_accessories", "jewelry", "leather", "sewing", "shoes",
				"tailor", "watches", "wool",
				// health and beauty
				"beauty", "chemist", "cosmetics", "hairdresser", "hairdresser_supply",
				"hearing_aids", "herbalist", "massage", "medical_supply",
				"nutrition_supplements", "optician", "perfumery", "tattoo",
				// diy, household and furnishing
				"agrarian", "appliance", "bathroom_furnishing", "doityourself",
				"electrical", "energy", "fireplace", "garden_centre",
				"garden_furniture", "glaziery", "groundskeeping", "hardware",
				"houseware", "locksmith", "paint", "pottery", "security", "trade",
				"antiques", "bed", "candles", "carpet", "curtain", "doors",
				"flooring", "furniture", "household_linen", "interior_decoration",
				"kitchen", "lighting", "tiles", "window_blind",
				// electronics
				"computer", "electronics", "hifi", "mobile_phone", "radiotechnics",
				"telecommunication", "vacuum_cleaner",
				// art, music, hobbies
				"art", "camera", "collector", "craft", "frame", "games", "model",
				"music", "photo", "trophy", "video", "video_games", "anime",
				// stationery, gifts, services
				"books", "gift", "lottery", "newsagent", "stationery", "ticket",
				"copyshop", "dry_cleaning", "laundry", "pawnbroker", "pet", "toys",
				"travel_agency",
			)},
			{Key: "amenity", Values: Values("internet_cafe")},
		}},
	})
}
