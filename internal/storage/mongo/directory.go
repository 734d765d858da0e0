package mongo

import (
	"context"
	"fmt"

	"coedit/internal/directory"
	"coedit/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var oldestFirst = options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

type ProjectStore struct {
	coll *mongo.Collection
}

func NewProjectStore(db *mongo.Database) *ProjectStore {
	return &ProjectStore{coll: db.Collection(projectCollection)}
}

func (s *ProjectStore) Create(ctx context.Context, p *directory.Project) error {
	if p.Name == "" || p.Owner == "" {
		return fmt.Errorf("project needs a name and an owner")
	}
	// $addToSet needs an array, not null.
	if p.Files == nil {
		p.Files = []string{}
	}
	if _, err := s.coll.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("inserting project: %w", translate(err))
	}
	return nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*directory.Project, error) {
	var p directory.Project
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, translate(err))
	}
	return &p, nil
}

// Update sets every field but files, which LinkFile and UnlinkFile own.
func (s *ProjectStore) Update(ctx context.Context, p *directory.Project) error {
	update := bson.M{"$set": bson.M{
		"name":          p.Name,
		"owner":         p.Owner,
		"parentFolder":  p.ParentFolder,
		"root":          p.Root,
		"isFolder":      p.IsFolder,
		"collaborators": p.Collaborators,
		"createdAt":     p.CreatedAt,
	}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": p.ID}, update)
	if err != nil {
		return fmt.Errorf("updating project %s: %w", p.ID, translate(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("project %s: %w", p.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *ProjectStore) LinkFile(ctx context.Context, folderID, fileID string) error {
	return s.editFiles(ctx, folderID, bson.M{"$addToSet": bson.M{"files": fileID}})
}

func (s *ProjectStore) UnlinkFile(ctx context.Context, folderID, fileID string) error {
	return s.editFiles(ctx, folderID, bson.M{"$pull": bson.M{"files": fileID}})
}

func (s *ProjectStore) editFiles(ctx context.Context, folderID string, update bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": folderID}, update)
	if err != nil {
		return fmt.Errorf("updating files of %s: %w", folderID, translate(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("project %s: %w", folderID, storage.ErrNotFound)
	}
	return nil
}

// ListChildren treats a missing parentFolder as top-level.
func (s *ProjectStore) ListChildren(ctx context.Context, parentID string) ([]*directory.Project, error) {
	filter := bson.M{"parentFolder": parentID}
	if parentID == "" {
		filter = bson.M{"parentFolder": bson.M{"$in": bson.A{nil, ""}}}
	}
	list, err := findAll[directory.Project](ctx, s.coll, filter, oldestFirst)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return list, nil
}

type FileStore struct {
	coll *mongo.Collection
}

func NewFileStore(db *mongo.Database) *FileStore {
	return &FileStore{coll: db.Collection(fileCollection)}
}

func (s *FileStore) Create(ctx context.Context, f *directory.File) error {
	if f.Name == "" || f.Project == "" || f.Folder == "" {
		return fmt.Errorf("file needs a name, a project and a folder")
	}
	if _, err := s.coll.InsertOne(ctx, f); err != nil {
		return fmt.Errorf("inserting file: %w", translate(err))
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*directory.File, error) {
	var f directory.File
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return nil, fmt.Errorf("getting file %s: %w", id, translate(err))
	}
	return &f, nil
}

func (s *FileStore) Update(ctx context.Context, f *directory.File) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": f.ID}, f)
	if err != nil {
		return fmt.Errorf("updating file %s: %w", f.ID, translate(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("file %s: %w", f.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting file %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *FileStore) ListByFolder(ctx context.Context, folderID string) ([]*directory.File, error) {
	list, err := findAll[directory.File](ctx, s.coll, bson.M{"folder": folderID}, oldestFirst)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return list, nil
}
