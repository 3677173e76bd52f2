package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeWeightedPercentile() string {
	return `Computes weighted percentiles of a list of numbers passed inline.

USE WHEN:
- You already hold the values (latencies, sizes, scores) in the conversation
- Each value stands for a different amount of mass (request counts, bytes, users)
- You need a median or tail value that respects those weights

INTERPRETING RESULTS:
- Ranks are percentages in [0, 100]; 50 is the weighted median
- A value is a linear interpolation between neighbouring samples, so it may
  not appear in the input
- Ranks below the first sample's midpoint return the minimum; ranks above the
  last sample's midpoint return the maximum
- Zero-weight samples are ignored entirely
- Omitted weights mean every sample counts once

METRICS RETURNED:
- ranks: the requested ranks (defaults to 50, 90, 95, 99)
- values: one percentile per rank, in the same order
- count: samples given, kept: samples with positive weight
- total_weight: sum of the positive weights`
}

func describeAnalyzeDatasets() string {
	return `Loads sample files and computes weighted percentiles for each dataset in them.

USE WHEN:
- The samples live in CSV, JSON, YAML, or plain-text files
- Comparing the same percentiles across several datasets
- Checking tail behaviour of exported measurements

INTERPRETING RESULTS:
- Each dataset is evaluated on its own; one failure does not hide the others
- Directories are searched for .csv, .json, .yaml, .yml and .txt files
- CSV files read the "value" column and an optional "weight" column
- JSON and YAML files hold one {samples, weights, sorter, name} object or a list
- Text files hold one value per line with an optional weight after it
- digest identifies the exact bytes evaluated (BLAKE3)
- failed counts datasets whose error field is set

METRICS RETURNED:
- ranks: the requested ranks
- results: per dataset name, source, digest, count, kept, total_weight, values
- summary (optional): weighted mean, standard deviation, min and max`
}
