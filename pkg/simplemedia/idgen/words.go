package idgen

var adjectives = []string{
	"agile", "amber", "ancient", "autumn", "bashful", "bold", "brave", "breezy",
	"bright", "brisk", "bubbly", "calm", "candid", "cheerful", "chilly", "clever",
	"cosmic", "crimson", "curious", "daring", "dapper", "dizzy", "dusty", "eager",
	"early", "electric", "fancy", "fearless", "fluffy", "frosty", "funny", "fuzzy",
	"gentle", "giant", "gleaming", "golden", "grumpy", "happy", "hasty", "hidden",
	"humble", "icy", "jolly", "jumpy", "kind", "lazy", "little", "lively",
	"lucky", "mellow", "merry", "mighty", "misty", "modest", "nimble", "noble",
	"odd", "plucky", "polite", "proud", "quick", "quiet", "rapid", "rusty",
	"shiny", "shy", "silent", "silly", "sleepy", "slick", "smooth", "snappy",
	"sneaky", "solar", "spicy", "spotty", "steady", "stormy", "sunny", "swift",
	"tidy", "tiny", "velvet", "vivid", "wandering", "warm", "wild", "windy",
	"witty", "wobbly", "young", "zany", "zealous",
}

var animals = []string{
	"albatross", "alpaca", "ant", "badger", "bat", "bear", "beaver", "bison",
	"buffalo", "camel", "caracal", "cat", "cheetah", "cobra", "cougar", "coyote",
	"crab", "crane", "crow", "deer", "dingo", "dolphin", "donkey", "dove",
	"duck", "eagle", "eel", "elk", "falcon", "ferret", "finch", "fox",
	"frog", "gazelle", "gecko", "gerbil", "goat", "goose", "gorilla", "hare",
	"hawk", "hedgehog", "heron", "hippo", "horse", "ibex", "iguana", "jackal",
	"jaguar", "koala", "lemur", "leopard", "lion", "lizard", "llama", "lobster",
	"lynx", "magpie", "marmot", "meerkat", "mole", "moose", "mouse", "newt",
	"ocelot", "octopus", "okapi", "otter", "owl", "panda", "panther", "parrot",
	"pelican", "penguin", "pigeon", "puffin", "puma", "quail", "rabbit", "raccoon",
	"raven", "robin", "salmon", "seal", "shark", "sloth", "snail", "sparrow",
	"squid", "stork", "swan", "tapir", "tiger", "toad", "turtle", "walrus",
	"weasel", "whale", "wolf", "wombat", "yak", "zebra",
}
