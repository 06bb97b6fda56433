// Package jobstore persists transcription job records in DynamoDB.
//
// Table layout: partition key "id". A global secondary index (SongIndex)
// keys on the denormalized "song" attribute with "version" as range key, so
// the latest version of a song and a specific (song, version) job are both
// single queries. Version counters share the table under "version#<song>"
// ids; those items carry no song attribute and never appear in the index.
package jobstore

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"example.com/soundsright/internal/types"
)

// SongIndex is the GSI queried by song identity.
const SongIndex = "song-index"

const versionKeyPrefix = "version#"

type Store struct {
	DB    dynamodbiface.DynamoDBAPI
	Table string
}

func New(db dynamodbiface.DynamoDBAPI, table string) *Store {
	return &Store{DB: db, Table: table}
}

// Create inserts a fresh job record. The id must be unused.
func (s *Store) Create(job *types.TranscriptionJob) error {
	job.Song = job.SongID().Key()
	if job.Seq == 0 {
		job.Seq = 1
	}
	item, err := dynamodbattribute.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	_, err = s.DB.PutItem(&dynamodb.PutItemInput{
		TableName:           aws.String(s.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads a job by id.
func (s *Store) Get(id string) (*types.TranscriptionJob, error) {
	out, err := s.DB.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.Table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	var job types.TranscriptionJob
	if err := dynamodbattribute.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Update rewrites the full record, guarded by the seq token the caller read.
// A concurrent writer that got there first causes ErrStaleWrite; the caller
// should re-read and decide whether its transition still applies. On success
// the job's seq reflects the stored value.
func (s *Store) Update(job *types.TranscriptionJob) error {
	job.Touch()
	expected := job.Seq
	job.Seq = expected + 1
	item, err := dynamodbattribute.MarshalMap(job)
	if err != nil {
		job.Seq = expected
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	_, err = s.DB.PutItem(&dynamodb.PutItemInput{
		TableName:           aws.String(s.Table),
		Item:                item,
		ConditionExpression: aws.String("seq = :expected"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":expected": {N: aws.String(strconv.FormatInt(expected, 10))},
		},
	})
	if err != nil {
		job.Seq = expected
		if isConditionalFailure(err) {
			return fmt.Errorf("update job %s: %w", job.ID, types.ErrStaleWrite)
		}
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

// NextVersion atomically assigns the next version number for a song. The
// counter item is incremented server-side, so concurrent submissions for the
// same song never observe the same version.
func (s *Store) NextVersion(song types.Song) (int, error) {
	out, err := s.DB.UpdateItem(&dynamodb.UpdateItemInput{
		TableName: aws.String(s.Table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(versionKeyPrefix + song.Key())},
		},
		UpdateExpression: aws.String("ADD latest :one"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":one": {N: aws.String("1")},
		},
		ReturnValues: aws.String("UPDATED_NEW"),
	})
	if err != nil {
		return 0, fmt.Errorf("next version for %s: %w", song.Key(), err)
	}
	attr, ok := out.Attributes["latest"]
	if !ok || attr.N == nil {
		return 0, fmt.Errorf("next version for %s: counter attribute missing", song.Key())
	}
	version, err := strconv.Atoi(aws.StringValue(attr.N))
	if err != nil {
		return 0, fmt.Errorf("next version for %s: %w", song.Key(), err)
	}
	return version, nil
}

// LatestVersion returns the highest job version recorded for a song, or 0
// when the song has never been submitted.
func (s *Store) LatestVersion(song types.Song) (int, error) {
	out, err := s.querySong(song, nil, 1)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Version, nil
}

// GetByVersion loads the job recorded for one (song, version) pair.
func (s *Store) GetByVersion(song types.Song, version int) (*types.TranscriptionJob, error) {
	jobs, err := s.querySong(song, &version, 1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job for %s version %d: %w", song.Key(), version, types.ErrNotFound)
	}
	return &jobs[0], nil
}

func (s *Store) querySong(song types.Song, version *int, limit int64) ([]types.TranscriptionJob, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.Table),
		IndexName:              aws.String(SongIndex),
		KeyConditionExpression: aws.String("#s = :song"),
		ExpressionAttributeNames: map[string]*string{
			"#s": aws.String("song"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":song": {S: aws.String(song.Key())},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int64(limit),
	}
	if version != nil {
		input.KeyConditionExpression = aws.String("#s = :song AND #v = :version")
		input.ExpressionAttributeNames["#v"] = aws.String("version")
		input.ExpressionAttributeValues[":version"] = &dynamodb.AttributeValue{
			N: aws.String(strconv.Itoa(*version)),
		}
	}
	out, err := s.DB.Query(input)
	if err != nil {
		return nil, fmt.Errorf("query song %s: %w", song.Key(), err)
	}
	var jobs []types.TranscriptionJob
	if err := dynamodbattribute.UnmarshalListOfMaps(out.Items, &jobs); err != nil {
		return nil, fmt.Errorf("unmarshal song %s: %w", song.Key(), err)
	}
	return jobs, nil
}

func isConditionalFailure(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}
