package cache

// TestDocument is a simple test document type
type TestDocument struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
	Age  int    `bson:"age"`
}
