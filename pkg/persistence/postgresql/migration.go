package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Transaction log: one row per instance, inserted at start and updated at finish
			CREATE TABLE transactions (
				id BIGINT PRIMARY KEY,
				integration_id VARCHAR(255) NOT NULL,
				client_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
				message JSONB,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_transactions_integration_id ON transactions(integration_id);
			CREATE INDEX idx_transactions_status ON transactions(status);
			CREATE INDEX idx_transactions_created_at ON transactions(created_at);

			-- One row per executed step
			CREATE TABLE steps (
				id BIGINT PRIMARY KEY,
				transaction_id BIGINT NOT NULL,
				integration_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				step_type VARCHAR(50) NOT NULL,
				failed BOOLEAN NOT NULL DEFAULT false,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_steps_transaction_id ON steps(transaction_id);

			-- Payloads of a step, kept apart from the narrow steps table
			CREATE TABLE step_infos (
				id BIGINT PRIMARY KEY,
				step_record_id BIGINT NOT NULL REFERENCES steps(id) ON DELETE CASCADE,
				input JSONB,
				output JSONB,
				properties JSONB DEFAULT '{}',
				error_message TEXT
			);

			CREATE UNIQUE INDEX idx_step_infos_step_record_id ON step_infos(step_record_id);
		`,
	}
}
