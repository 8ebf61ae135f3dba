package postgresql

import (
	"context"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

func TestTableIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		table    string
		expected string
		wantErr  bool
	}{
		{name: "plain", table: "vault_credentials", expected: `"vault_credentials"`},
		{name: "schema qualified", table: "secrets.vault", expected: `"secrets"."vault"`},
		{name: "quote is escaped", table: `bad"name`, expected: `"bad""name"`},
		{name: "empty part", table: "secrets.", wantErr: true},
		{name: "too many parts", table: "a.b.c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identifier, err := tableIdentifier(tt.table)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, identifier)
		})
	}
}

func TestPostgreSQLPluginCreator_Schema(t *testing.T) {
	creator := NewPostgreSQLPluginCreator()

	schema, err := jsonschema.CompileString("mem://plugins/postgresql.json", creator.ConfigurationSchema())
	require.NoError(t, err)

	document := map[string]any{}
	for key, value := range creator.DefaultConfiguration() {
		document[key] = value
	}
	assert.NoError(t, schema.Validate(document))

	document["table"] = "public.vault"
	assert.NoError(t, schema.Validate(document))

	document["table"] = "drop table; --"
	assert.Error(t, schema.Validate(document))
}

func TestPostgreSQLPlugin_ActivateRejectsBadURI(t *testing.T) {
	plugin, err := NewPostgreSQLPluginCreator().CreatePlugin(context.Background(), domain.CreatePluginParams{Name: "pg"})
	require.NoError(t, err)

	err = plugin.Activate(context.Background(), map[string]string{"uri": "postgres://%zz", "table": "vault"})
	assert.Error(t, err)

	err = plugin.SetPassword(context.Background(), domain.SetPasswordParams{AccountName: "root"})
	assert.ErrorIs(t, err, domain.ErrPluginNotLoaded)

	assert.Contains(t, upsertStatement(`"vault"`), "ON CONFLICT (secret_name)")
}
