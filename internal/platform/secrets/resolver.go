// Package secrets resolves awssm:// references in configuration structs
// through AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Prefix marks a config value as a secret reference:
// awssm://<secret-id> or awssm://<secret-id>#<json-key>.
const Prefix = "awssm://"

var (
	ErrEmptySecret   = errors.New("secret has no string value")
	ErrMissingKey    = errors.New("secret JSON does not contain key")
	ErrNotAStructPtr = errors.New("resolve target must be a pointer to a struct")
)

// SecretsAPI is the Secrets Manager call the resolver needs.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver replaces secret references with their values.
type Resolver struct {
	client SecretsAPI
	mu     sync.Mutex
	cache  map[string]string
}

// NewResolver creates a resolver backed by client.
func NewResolver(client SecretsAPI) *Resolver {
	return &Resolver{client: client, cache: map[string]string{}}
}

// NewAWSResolver loads the default AWS configuration for region.
func NewAWSResolver(ctx context.Context, region string) (*Resolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewResolver(secretsmanager.NewFromConfig(cfg)), nil
}

// Resolve walks target, a pointer to a struct, and replaces every string
// field holding a reference. Nested structs and struct pointers are visited.
func (r *Resolver) Resolve(ctx context.Context, target any) (int, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return 0, ErrNotAStructPtr
	}
	return r.walk(ctx, v.Elem())
}

func (r *Resolver) walk(ctx context.Context, v reflect.Value) (int, error) {
	count := 0
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			ref := field.String()
			if !strings.HasPrefix(ref, Prefix) {
				continue
			}
			value, err := r.Lookup(ctx, ref)
			if err != nil {
				return count, fmt.Errorf("field %s: %w", v.Type().Field(i).Name, err)
			}
			field.SetString(value)
			count++
		case reflect.Struct:
			n, err := r.walk(ctx, field)
			count += n
			if err != nil {
				return count, err
			}
		case reflect.Pointer:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				n, err := r.walk(ctx, field.Elem())
				count += n
				if err != nil {
					return count, err
				}
			}
		}
	}
	return count, nil
}

// Lookup fetches one reference.
func (r *Resolver) Lookup(ctx context.Context, ref string) (string, error) {
	id, key, _ := strings.Cut(strings.TrimPrefix(ref, Prefix), "#")

	secret, err := r.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if key == "" {
		return secret, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(secret), &fields); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object: %w", id, err)
	}
	value, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s#%s", ErrMissingKey, id, key)
	}
	return fmt.Sprint(value), nil
}

func (r *Resolver) fetch(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache[id]; ok {
		return v, nil
	}
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("%w: %s", ErrEmptySecret, id)
	}
	r.cache[id] = *out.SecretString
	return *out.SecretString, nil
}
