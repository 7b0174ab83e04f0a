package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"canvasflow/internal/domain"
)

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string
}

// mongoQuery is the JSON a database block stores for MongoDB. Filter,
// Projection, Sort and Pipeline accept Extended JSON ($oid, $date...).
type mongoQuery struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation,omitempty"` // find (default) or aggregate
	Filter     json.RawMessage `json:"filter,omitempty"`
	Projection json.RawMessage `json:"projection,omitempty"`
	Sort       json.RawMessage `json:"sort,omitempty"`
	Pipeline   json.RawMessage `json:"pipeline,omitempty"`
}

func newMongoConnector(conn *domain.DatabaseConnection, password string) (*mongoConnector, error) {
	uri := mongoURI(conn, password)
	dbName := conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	log.Printf("[MONGO] connected to database %s", dbName)
	return &mongoConnector{client: client, dbName: dbName}, nil
}

// mongoURI accepts either a full mongodb:// or mongodb+srv:// string in
// Host, with <password> placeholders, or a bare host and port.
func mongoURI(conn *domain.DatabaseConnection, password string) string {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if password != "" {
			uri = strings.NewReplacer("<password>", password, "<db_password>", password).Replace(uri)
		}
		return uri
	}
	port := conn.Port
	if port == 0 {
		port = 27017
	}
	uri := fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
	if conn.Username != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, password, conn.Host, port)
	}
	var extras map[string]string
	if conn.ExtraJSON != "" && json.Unmarshal([]byte(conn.ExtraJSON), &extras) == nil && len(extras) > 0 {
		params := make([]string, 0, len(extras))
		for k, v := range extras {
			params = append(params, k+"="+v)
		}
		sort.Strings(params)
		uri += "/?" + strings.Join(params, "&")
	}
	return uri
}

// databaseFromURI reads the path segment of a connection string, the
// driver's own default being "test".
func databaseFromURI(uri string) string {
	rest := uri[strings.Index(uri, "://")+3:]
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return "test"
	}
	name := rest[slash+1:]
	if q := strings.Index(name, "?"); q != -1 {
		name = name[:q]
	}
	if name == "" {
		return "test"
	}
	return name
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func extJSON(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	return bson.UnmarshalExtJSON(raw, false, into)
}

func (m *mongoConnector) Query(ctx context.Context, query string, limit int) (*Rows, error) {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	var cursor *mongo.Cursor
	switch mq.Operation {
	case "", "find":
		filter := bson.D{}
		opts := options.Find().SetLimit(int64(limit))
		if err := extJSON(mq.Filter, &filter); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		if len(mq.Projection) > 0 {
			var p bson.D
			if err := extJSON(mq.Projection, &p); err != nil {
				return nil, fmt.Errorf("projection: %w", err)
			}
			opts.SetProjection(p)
		}
		if len(mq.Sort) > 0 {
			var s bson.D
			if err := extJSON(mq.Sort, &s); err != nil {
				return nil, fmt.Errorf("sort: %w", err)
			}
			opts.SetSort(s)
		}
		c, err := coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		cursor = c
	case "aggregate":
		// A pipeline is an array; wrap it so ExtJSON sees a document.
		var wrapped struct {
			Pipeline bson.A `bson:"pipeline"`
		}
		if len(mq.Pipeline) > 0 {
			doc := append(append([]byte(`{"pipeline":`), mq.Pipeline...), '}')
			if err := bson.UnmarshalExtJSON(doc, false, &wrapped); err != nil {
				return nil, fmt.Errorf("pipeline: %w", err)
			}
		}
		pipeline := append(wrapped.Pipeline, bson.D{{Key: "$limit", Value: limit}})
		c, err := coll.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		cursor = c
	default:
		return nil, fmt.Errorf("unsupported operation %q: database blocks are read-only", mq.Operation)
	}
	defer cursor.Close(ctx)
	return readDocuments(ctx, cursor)
}

// readDocuments converts each document to plain JSON values through
// relaxed Extended JSON, so ObjectIDs and dates survive as {"$oid": ...}.
func readDocuments(ctx context.Context, cursor *mongo.Cursor) (*Rows, error) {
	out := &Rows{Records: []map[string]any{}}
	seen := map[string]bool{}
	for cursor.Next(ctx) {
		data, err := bson.MarshalExtJSON(cursor.Current, false, false)
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		var rec map[string]any
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				out.Columns = append(out.Columns, k)
			}
		}
		out.Records = append(out.Records, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	sort.SliceStable(out.Columns, func(i, j int) bool {
		if out.Columns[i] == "_id" || out.Columns[j] == "_id" {
			return out.Columns[i] == "_id"
		}
		return out.Columns[i] < out.Columns[j]
	})
	return out, nil
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)
	collections, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(collections)

	schema := &SchemaInfo{}
	for _, name := range collections {
		info := TableInfo{Name: name}
		var doc bson.M
		err := db.Collection(name).FindOne(ctx, bson.M{}).Decode(&doc)
		if err == nil {
			for k, v := range doc {
				info.Columns = append(info.Columns, ColumnInfo{Name: k, Type: fmt.Sprintf("%T", v)})
			}
			sort.Slice(info.Columns, func(i, j int) bool { return info.Columns[i].Name < info.Columns[j].Name })
		}
		schema.Tables = append(schema.Tables, info)
	}
	return schema, nil
}

func (m *mongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
